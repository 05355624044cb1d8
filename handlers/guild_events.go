package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
	"sticky-bot/scanner"
	"sticky-bot/utils"
)

// GuildCreateHandler loads a guild's stickies whenever it becomes available.
func GuildCreateHandler(b *bot.Bot) func(s *discordgo.Session, g *discordgo.GuildCreate) {
	return func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if g.Guild == nil || g.Unavailable {
			return
		}
		ctx := b.Context()
		n, err := b.Registry.GuildAvailable(ctx, g.ID)
		if err != nil {
			log.Error().Err(err).Str("guild", g.ID).Msg("failed to load stickies")
			utils.Error("GuildCreate", "LoadRepeaters", err.Error())
			return
		}
		log.Info().Str("guild", g.ID).Str("name", g.Name).Int("runners", n).Msg("guild available")

		if n == 0 || !b.Settings.Bot.ScanAtStartup {
			return
		}
		if _, err := scanner.BackfillThreads(ctx, b.Discord, b.Registry, g.ID); err != nil {
			log.Warn().Err(err).Str("guild", g.ID).Msg("thread backfill failed")
		}
	}
}

// GuildDeleteHandler stops a guild's runners on outage or removal. Records stay stored.
func GuildDeleteHandler(b *bot.Bot) func(s *discordgo.Session, g *discordgo.GuildDelete) {
	return func(s *discordgo.Session, g *discordgo.GuildDelete) {
		if g.Guild == nil {
			return
		}
		b.Registry.GuildUnavailable(g.ID)
		log.Info().Str("guild", g.ID).Bool("outage", g.Unavailable).Msg("guild unavailable, runners stopped")
	}
}
