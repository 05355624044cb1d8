package models

import "time"

// ChannelInfo is the subset of a Discord channel the engine needs.
type ChannelInfo struct {
	ID       string
	GuildID  string
	ParentID string
	Name     string
	IsThread bool
	IsForum  bool

	AppliedTags []string // forum tag IDs, threads only
}

// ChannelMessage is one entry of channel history used for activity checks.
type ChannelMessage struct {
	ID        string
	AuthorID  string
	AuthorBot bool
	Timestamp time.Time
}

// TemplateData is handed to the renderer once per send.
type TemplateData struct {
	GuildID      string
	GuildName    string
	ChannelID    string
	DisplayCount int
	Now          time.Time
}
