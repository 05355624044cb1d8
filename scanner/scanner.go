package scanner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"sticky-bot/models"
	"sticky-bot/repeater"
)

// ThreadLister is the part of the transport the backfill needs.
type ThreadLister interface {
	ActiveThreads(ctx context.Context, guildID string) ([]*models.ChannelInfo, error)
	Channel(ctx context.Context, channelID string) (*models.ChannelInfo, error)
}

// Result counts what a backfill did.
type Result struct {
	Threads int // active threads seen
	Posted  int // stickies posted
	Failed  int
}

// BackfillThreads posts thread stickies into active threads that were created
// while the bot was offline. Threads that already carry a tracked sticky are skipped.
func BackfillThreads(ctx context.Context, lister ThreadLister, registry *repeater.Registry, guildID string) (Result, error) {
	var res Result
	threads, err := lister.ActiveThreads(ctx, guildID)
	if err != nil {
		return res, fmt.Errorf("list active threads of guild %s: %w", guildID, err)
	}

	parents := make(map[string]*models.ChannelInfo)
	processed := make(map[string]bool)
	for _, thread := range threads {
		if thread == nil || processed[thread.ID] || thread.ParentID == "" {
			continue
		}
		processed[thread.ID] = true
		res.Threads++

		runners := autoStickyRunners(registry, guildID, thread.ParentID)
		if len(runners) == 0 {
			continue
		}

		parent, seen := parents[thread.ParentID]
		if !seen {
			parent, err = lister.Channel(ctx, thread.ParentID)
			if err != nil {
				log.Warn().Err(err).Str("channel", thread.ParentID).Msg("could not resolve thread parent, skipping")
			}
			parents[thread.ParentID] = parent
		}
		if parent == nil {
			continue
		}

		for _, r := range runners {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if r.TracksThread(thread.ID) {
				continue
			}
			if parent.IsForum && !repeater.ShouldDisplayForForumTags(r.Snapshot(), thread.AppliedTags) {
				continue
			}
			switch r.PostInThread(ctx, thread.ID) {
			case repeater.OutcomeSent:
				res.Posted++
			case repeater.OutcomeFailed:
				res.Failed++
			}
		}
	}

	log.Info().Str("guild", guildID).Int("threads", res.Threads).Int("posted", res.Posted).
		Int("failed", res.Failed).Msg("thread backfill finished")
	return res, nil
}

func autoStickyRunners(registry *repeater.Registry, guildID, channelID string) []*repeater.Runner {
	var out []*repeater.Runner
	for _, r := range registry.Runners(guildID, channelID) {
		rep := r.Snapshot()
		if rep.IsEnabled && rep.ThreadAutoSticky {
			out = append(out, r)
		}
	}
	return out
}
