package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
)

// Register all handlers to the bot.
func Register(b *bot.Bot) {
	// Register event handlers
	b.Session.AddHandler(InteractionCreate(b))
	b.Session.AddHandler(GuildCreateHandler(b))
	b.Session.AddHandler(GuildDeleteHandler(b))
	b.Session.AddHandler(MessageCreateHandler(b))
	b.Session.AddHandler(ThreadCreateHandler(b))
	b.Session.AddHandler(ThreadDeleteHandler(b))
	b.Session.AddHandler(ChannelDeleteHandler(b))

	// Add a ready handler to log when the bot is connected.
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", s.State.User.Username).Int("guilds", len(r.Guilds)).Msg("logged in")
	})
}
