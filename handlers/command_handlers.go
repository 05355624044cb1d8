package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
	"sticky-bot/models"
	"sticky-bot/repeater"
	"sticky-bot/utils"
)

// HandleSticky handles the /sticky subcommands.
func HandleSticky(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 || i.GuildID == "" {
		respondEphemeral(s, i, "🚫 This command only works inside a server.")
		return
	}
	sub := data.Options[0]
	opts := optionsOf(sub.Options)

	if !deferEphemeral(s, i) {
		return
	}

	var (
		content string
		embeds  []*discordgo.MessageEmbed
		err     error
	)
	switch sub.Name {
	case "create":
		content, err = stickyCreate(b, i, opts)
	case "edit":
		content, err = stickyEdit(b, i, opts)
	case "list":
		embeds, err = stickyList(b, i)
	case "info":
		embeds, err = stickyInfo(b, i, opts)
	case "toggle":
		content, err = stickyToggle(b, i, opts)
	case "delete":
		content, err = stickyDelete(b, i, opts)
	default:
		err = fmt.Errorf("unknown subcommand %q", sub.Name)
	}
	if err != nil {
		content = errorText(err)
		embeds = nil
		log.Warn().Err(err).Str("guild", i.GuildID).Str("subcommand", sub.Name).Msg("sticky command failed")
	}
	editReply(s, i, content, embeds...)
}

func errorText(err error) string {
	var input *optionError
	switch {
	case errors.As(err, &input):
		return "❌ " + input.Error()
	case errors.Is(err, repeater.ErrNotFound):
		return "❌ No sticky message at that position. Use `/sticky list` to see them."
	case errors.Is(err, repeater.ErrInvalidRepeater):
		return "❌ Invalid settings: " + strings.TrimPrefix(err.Error(), repeater.ErrInvalidRepeater.Error()+": ")
	default:
		return "🚫 Internal error, the sticky message was not changed."
	}
}

func userID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func stickyCreate(b *bot.Bot, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	rep := &models.Repeater{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		IsEnabled: true,
		CreatedBy: userID(i),
	}
	if err := applySettings(rep, opts); err != nil {
		return "", err
	}
	created, err := b.Registry.Create(b.Context(), rep)
	if err != nil {
		return "", err
	}
	utils.Info("Sticky", "Create", fmt.Sprintf("User %s created sticky #%d in <#%s>", rep.CreatedBy, created.ID, created.ChannelID))
	return fmt.Sprintf("✅ Sticky created in <#%s> (%s).", created.ChannelID, modeText(created)), nil
}

func indexOf(opts optionMap) int {
	idx, _ := opts.int("index")
	return idx
}

func stickyEdit(b *bot.Bot, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	current, err := b.Registry.GetByIndex(b.Context(), i.GuildID, indexOf(opts))
	if err != nil {
		return "", err
	}
	if err := applySettings(current, opts); err != nil {
		return "", err
	}
	updated, err := b.Registry.Update(b.Context(), current)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Sticky in <#%s> updated (%s).", updated.ChannelID, modeText(updated)), nil
}

func stickyList(b *bot.Bot, i *discordgo.InteractionCreate) ([]*discordgo.MessageEmbed, error) {
	reps, err := b.Registry.List(b.Context(), i.GuildID)
	if err != nil {
		return nil, err
	}
	return []*discordgo.MessageEmbed{listEmbed(reps)}, nil
}

func stickyInfo(b *bot.Bot, i *discordgo.InteractionCreate, opts optionMap) ([]*discordgo.MessageEmbed, error) {
	idx := indexOf(opts)
	rep, err := b.Registry.GetByIndex(b.Context(), i.GuildID, idx)
	if err != nil {
		return nil, err
	}
	return []*discordgo.MessageEmbed{infoEmbed(rep, idx, b.Settings.Bot.Timezone)}, nil
}

func stickyToggle(b *bot.Bot, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	current, err := b.Registry.GetByIndex(b.Context(), i.GuildID, indexOf(opts))
	if err != nil {
		return "", err
	}
	enabled, ok := opts.bool("enabled")
	if !ok {
		enabled = !current.IsEnabled
	}
	updated, err := b.Registry.Toggle(b.Context(), i.GuildID, current.ID, enabled)
	if err != nil {
		return "", err
	}
	if updated.IsEnabled {
		return fmt.Sprintf("▶️ Sticky in <#%s> enabled.", updated.ChannelID), nil
	}
	return fmt.Sprintf("⏸️ Sticky in <#%s> disabled.", updated.ChannelID), nil
}

func stickyDelete(b *bot.Bot, i *discordgo.InteractionCreate, opts optionMap) (string, error) {
	current, err := b.Registry.GetByIndex(b.Context(), i.GuildID, indexOf(opts))
	if err != nil {
		return "", err
	}
	if err := b.Registry.Delete(b.Context(), i.GuildID, current.ID); err != nil {
		return "", err
	}
	utils.Info("Sticky", "Delete", fmt.Sprintf("User %s deleted sticky #%d in <#%s>", userID(i), current.ID, current.ChannelID))
	return fmt.Sprintf("🗑️ Sticky in <#%s> deleted.", current.ChannelID), nil
}

// HandlePing handles the logic for the /ping command.
func HandlePing(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Pong!",
		},
	})
}
