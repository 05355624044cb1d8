package utils

import (
	"strconv"
	"strings"

	"sticky-bot/models"
)

// TemplateRenderer expands {channel}, {guild}, {count}, {date} and {time} in sticky messages.
type TemplateRenderer struct {
	// GuildName resolves a guild ID when TemplateData carries no name. Optional.
	GuildName func(guildID string) string
}

func (r TemplateRenderer) Render(tmpl string, data models.TemplateData) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	guild := data.GuildName
	if guild == "" && r.GuildName != nil {
		guild = r.GuildName(data.GuildID)
	}
	if guild == "" {
		guild = data.GuildID
	}
	return strings.NewReplacer(
		"{channel}", "<#"+data.ChannelID+">",
		"{guild}", guild,
		"{count}", strconv.Itoa(data.DisplayCount),
		"{date}", data.Now.Format("2006-01-02"),
		"{time}", data.Now.Format("15:04"),
	).Replace(tmpl)
}
