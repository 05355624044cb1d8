package handlers

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
	"sticky-bot/models"
)

const maxChoices = 25

// HandleAutocomplete handles all autocomplete interactions.
func HandleAutocomplete(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "sticky" || len(data.Options) == 0 {
		return
	}
	for _, opt := range data.Options[0].Options {
		if opt.Name == "index" && opt.Focused {
			handleIndexAutocomplete(b, s, i)
		}
	}
}

func handleIndexAutocomplete(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	reps, err := b.Registry.List(b.Context(), i.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("error listing stickies for autocomplete")
		return
	}

	choices := indexChoices(reps, func(channelID string) string {
		if ch, err := s.State.Channel(channelID); err == nil {
			return ch.Name
		}
		return channelID
	})

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("error responding to autocomplete interaction")
	}
}

func indexChoices(reps []*models.Repeater, channelName func(string) string) []*discordgo.ApplicationCommandOptionChoice {
	n := min(len(reps), maxChoices)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, n)
	for idx, rep := range reps[:n] {
		name := fmt.Sprintf("%d. #%s · %s", idx+1, channelName(rep.ChannelID), preview(rep.Message, 60))
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  preview(name, 100),
			Value: idx + 1,
		})
	}
	return choices
}
