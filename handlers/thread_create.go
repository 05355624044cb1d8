package handlers

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"sticky-bot/bot"
	"sticky-bot/models"
	"sticky-bot/repeater"
)

// ThreadCreateHandler handles the THREAD_CREATE event.
func ThreadCreateHandler(b *bot.Bot) func(s *discordgo.Session, t *discordgo.ThreadCreate) {
	return func(s *discordgo.Session, t *discordgo.ThreadCreate) {
		// Joining an existing thread also fires THREAD_CREATE.
		if t.Channel == nil || !t.NewlyCreated || t.ParentID == "" {
			return
		}
		if len(b.Registry.Runners(t.GuildID, t.ParentID)) == 0 {
			return
		}
		parent, err := b.Discord.Channel(b.Context(), t.ParentID)
		if err != nil {
			log.Warn().Err(err).Str("thread", t.ID).Str("parent", t.ParentID).Msg("could not resolve thread parent")
			return
		}
		b.Router.ThreadCreated(threadEvent(t.Channel, parent))
	}
}

func threadEvent(th *discordgo.Channel, parent *models.ChannelInfo) repeater.ThreadEvent {
	// The thread's snowflake carries its creation time.
	created, err := discordgo.SnowflakeTimestamp(th.ID)
	if err != nil {
		created = time.Time{}
	}
	return repeater.ThreadEvent{
		GuildID:     th.GuildID,
		ThreadID:    th.ID,
		ParentID:    th.ParentID,
		ParentForum: parent != nil && parent.IsForum,
		AppliedTags: th.AppliedTags,
		CreatedAt:   created,
	}
}
