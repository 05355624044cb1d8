package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
)

// ThreadDeleteHandler handles the THREAD_DELETE event.
func ThreadDeleteHandler(b *bot.Bot) func(s *discordgo.Session, t *discordgo.ThreadDelete) {
	return func(s *discordgo.Session, t *discordgo.ThreadDelete) {
		if t.Channel == nil {
			return
		}
		log.Debug().Str("thread", t.ID).Str("guild", t.GuildID).Msg("thread delete event received")
		b.Router.ThreadDeleted(b.Context(), t.GuildID, t.ID)
		b.Discord.Forget(t.ID)
	}
}

// ChannelDeleteHandler removes the stickies of a deleted channel.
func ChannelDeleteHandler(b *bot.Bot) func(s *discordgo.Session, c *discordgo.ChannelDelete) {
	return func(s *discordgo.Session, c *discordgo.ChannelDelete) {
		if c.Channel == nil || c.GuildID == "" {
			return
		}
		b.Router.ChannelDeleted(b.Context(), c.GuildID, c.ID)
		b.Discord.Forget(c.ID)
	}
}
