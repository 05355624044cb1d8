package repeater

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"sticky-bot/models"
)

// MessageEvent is a message created in a guild channel or thread.
type MessageEvent struct {
	GuildID   string
	ChannelID string
	ParentID  string
	MessageID string
	AuthorID  string
	AuthorBot bool
	InThread  bool
	Timestamp time.Time
}

// ThreadEvent is a newly created thread.
type ThreadEvent struct {
	GuildID     string
	ThreadID    string
	ParentID    string
	ParentForum bool
	AppliedTags []string
	CreatedAt   time.Time
}

// Router fans gateway events out to the runners they concern. Fires run off the
// caller's goroutine under the registry's lifetime, so handlers never block on one.
type Router struct {
	registry *Registry
	deps     Deps
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry, deps: registry.deps}
}

// MessageCreated repositions immediate-mode stickies of the channel and
// thread stickies of the thread the message landed in.
func (rt *Router) MessageCreated(ev MessageEvent) {
	ctx := rt.registry.ctx
	if ev.AuthorBot || ev.GuildID == "" {
		return
	}
	if ev.InThread {
		for _, r := range rt.registry.RunnersTrackingThread(ev.GuildID, ev.ChannelID) {
			if tracked, _ := r.ThreadStickyMessage(ev.ChannelID); tracked == ev.MessageID {
				continue
			}
			r := r
			rt.deps.Spawn(func() { r.RepositionThread(ctx, ev.ChannelID) })
		}
		return
	}
	for _, r := range rt.registry.Runners(ev.GuildID, ev.ChannelID) {
		if r.currentTrigger().Mode() != models.TriggerImmediate {
			continue
		}
		rep := r.Snapshot()
		if rep.ThreadOnlyMode || rep.LastMessageID == ev.MessageID {
			continue
		}
		r := r
		rt.deps.Spawn(func() { r.Reposition(ctx) })
	}
}

// ThreadCreated posts thread stickies for auto-sticky runners on the thread's parent.
// The post waits until the thread is ThreadDebounce old so the starter message lands first.
func (rt *Router) ThreadCreated(ev ThreadEvent) {
	ctx := rt.registry.ctx
	if ev.GuildID == "" || ev.ParentID == "" {
		return
	}
	now := rt.deps.Clock.Now()
	for _, r := range rt.registry.Runners(ev.GuildID, ev.ParentID) {
		rep := r.Snapshot()
		if !rep.IsEnabled || !rep.ThreadAutoSticky {
			continue
		}
		if ev.ParentForum && !ShouldDisplayForForumTags(rep, ev.AppliedTags) {
			log.Debug().Int64("repeater", rep.ID).Str("thread", ev.ThreadID).Msg("thread tags do not qualify")
			continue
		}
		delay := rt.deps.ThreadDebounce
		if !ev.CreatedAt.IsZero() {
			delay -= now.Sub(ev.CreatedAt)
		}
		r := r
		post := func() { r.PostInThread(ctx, ev.ThreadID) }
		if delay <= 0 {
			rt.deps.Spawn(post)
			continue
		}
		rt.deps.Clock.AfterFunc(delay, post)
	}
}

// ThreadDeleted forgets the thread everywhere.
func (rt *Router) ThreadDeleted(ctx context.Context, guildID, threadID string) {
	if n := rt.registry.ForgetThread(ctx, guildID, threadID); n > 0 {
		log.Debug().Str("thread", threadID).Int("runners", n).Msg("deleted thread dropped from trackers")
	}
}

// ChannelDeleted removes the repeaters bound to the channel.
func (rt *Router) ChannelDeleted(ctx context.Context, guildID, channelID string) {
	if n := rt.registry.RemoveChannel(ctx, guildID, channelID); n > 0 {
		log.Info().Str("channel", channelID).Int("repeaters", n).Msg("repeaters of deleted channel removed")
	}
}
