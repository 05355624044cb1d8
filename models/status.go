package models

import "time"

// EngineStatus is written to the status file so operators can see what is running.
type EngineStatus struct {
	LastUpdated time.Time               `json:"last_updated"`
	Guilds      map[string]*GuildStatus `json:"guilds"`
}

// GuildStatus describes the live runners of one guild.
type GuildStatus struct {
	Runners       int            `json:"runners"`
	Channels      map[string]int `json:"channels"` // channel ID -> runner count
	TrackedThread int            `json:"tracked_threads"`
}
