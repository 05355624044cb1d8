package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"sticky-bot/models"
	"sticky-bot/repeater"
)

const maxHistoryLimit = 100

// Discord implements repeater.Messenger on top of a discordgo session.
type Discord struct {
	session *discordgo.Session

	sendRate  rate.Limit
	sendBurst int
	limiters  sync.Map // channel ID -> *rate.Limiter
}

// NewDiscord wraps session. perSecond <= 0 disables the per-channel send limiter.
func NewDiscord(session *discordgo.Session, perSecond float64, burst int) *Discord {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Discord{session: session, sendRate: limit, sendBurst: burst}
}

func (d *Discord) limiter(channelID string) *rate.Limiter {
	if l, ok := d.limiters.Load(channelID); ok {
		return l.(*rate.Limiter)
	}
	l, _ := d.limiters.LoadOrStore(channelID, rate.NewLimiter(d.sendRate, d.sendBurst))
	return l.(*rate.Limiter)
}

// Forget drops the limiter of a deleted channel.
func (d *Discord) Forget(channelID string) {
	d.limiters.Delete(channelID)
}

func (d *Discord) Channel(ctx context.Context, channelID string) (*models.ChannelInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, err := d.session.State.Channel(channelID)
	if err != nil {
		ch, err = d.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetch channel %s: %w", channelID, classify(err))
		}
	}
	return channelInfo(ch), nil
}

func channelInfo(ch *discordgo.Channel) *models.ChannelInfo {
	return &models.ChannelInfo{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		ParentID: ch.ParentID,
		Name:     ch.Name,
		IsThread: ch.IsThread(),
		IsForum:  ch.Type == discordgo.ChannelTypeGuildForum,

		AppliedTags: ch.AppliedTags,
	}
}

func (d *Discord) SendMessage(ctx context.Context, channelID, content string, silent bool) (string, error) {
	if err := d.limiter(channelID).Wait(ctx); err != nil {
		return "", err
	}
	send := &discordgo.MessageSend{Content: content}
	if silent {
		send.Flags = discordgo.MessageFlagsSuppressNotifications
	}
	msg, err := d.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send message to %s: %w", channelID, classify(err))
	}
	return msg.ID, nil
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, classify(err))
	}
	return nil
}

func (d *Discord) LastMessageID(ctx context.Context, channelID string) (string, error) {
	history, err := d.fetch(ctx, channelID, 1)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", nil
	}
	return history[0].ID, nil
}

// RecentMessages returns up to limit messages, newest first.
func (d *Discord) RecentMessages(ctx context.Context, channelID string, limit int) ([]models.ChannelMessage, error) {
	history, err := d.fetch(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.ChannelMessage, 0, len(history))
	for _, msg := range history {
		if msg == nil || msg.Author == nil {
			continue
		}
		out = append(out, models.ChannelMessage{
			ID:        msg.ID,
			AuthorID:  msg.Author.ID,
			AuthorBot: msg.Author.Bot,
			Timestamp: msg.Timestamp,
		})
	}
	return out, nil
}

func (d *Discord) fetch(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	history, err := d.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channel history of %s: %w", channelID, classify(err))
	}
	return history, nil
}

// GuildName resolves a guild name from the state cache.
func (d *Discord) GuildName(guildID string) string {
	g, err := d.session.State.Guild(guildID)
	if err != nil {
		return ""
	}
	return g.Name
}

// ActiveThreads lists the active threads of a guild.
func (d *Discord) ActiveThreads(ctx context.Context, guildID string) ([]*models.ChannelInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, err := d.session.GuildThreadsActive(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list active threads of %s: %w", guildID, classify(err))
	}
	out := make([]*models.ChannelInfo, 0, len(list.Threads))
	for _, th := range list.Threads {
		out = append(out, channelInfo(th))
	}
	return out, nil
}

// classify maps Discord REST failures onto the engine's sentinel errors.
func classify(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownGuild:
			return fmt.Errorf("%w: %v", repeater.ErrChannelNotFound, err)
		case discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("%w: %v", repeater.ErrMessageNotFound, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %v", repeater.ErrMissingPermissions, err)
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", repeater.ErrMissingPermissions, err)
	}
	return err
}
