package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
	"sticky-bot/models"
	"sticky-bot/repeater"
)

// MessageCreateHandler will be called every time a new message is created on any channel that the authenticated bot has access to.
func MessageCreateHandler(b *bot.Bot) func(s *discordgo.Session, m *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// Ignore bots, including the bot itself
		if m.Author == nil || m.Author.Bot || m.GuildID == "" {
			return
		}
		ch, err := b.Discord.Channel(b.Context(), m.ChannelID)
		if err != nil {
			log.Debug().Err(err).Str("channel", m.ChannelID).Msg("could not resolve message channel")
			return
		}
		b.Router.MessageCreated(messageEvent(m.Message, ch))
	}
}

func messageEvent(m *discordgo.Message, ch *models.ChannelInfo) repeater.MessageEvent {
	ev := repeater.MessageEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		ev.AuthorID = m.Author.ID
		ev.AuthorBot = m.Author.Bot
	}
	if ch != nil && ch.IsThread {
		ev.InThread = true
		ev.ParentID = ch.ParentID
	}
	return ev
}
