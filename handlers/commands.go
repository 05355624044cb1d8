package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
)

var commandPermissions = map[string]string{
	"sticky": "admin",
	"ping":   "guest",
}

// CommandDispatcher is the central handler for all application command interactions.
// It performs permission checks and then dispatches the interaction to the appropriate handler.
func CommandDispatcher(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	commandName := i.ApplicationCommandData().Name

	if requiredLevel, ok := commandPermissions[commandName]; ok {
		if !b.Auth.CheckPermission(i, requiredLevel) {
			respondEphemeral(s, i, "🚫 You do not have permission to run this command.")
			return
		}
	}

	switch commandName {
	case "sticky":
		HandleSticky(b, s, i)
	case "ping":
		HandlePing(s, i)
	default:
		respondEphemeral(s, i, "🚫 Internal error: unknown command.")
	}
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("error responding to interaction")
	}
}

// deferEphemeral acknowledges the interaction; the answer follows through editReply.
func deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Error().Err(err).Msg("error deferring interaction")
		return false
	}
	return true
}

func editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, embeds ...*discordgo.MessageEmbed) {
	edit := &discordgo.WebhookEdit{Content: &content}
	if len(embeds) > 0 {
		edit.Embeds = &embeds
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		log.Error().Err(err).Msg("error editing interaction response")
	}
}
