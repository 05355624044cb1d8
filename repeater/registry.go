package repeater

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"sticky-bot/models"
)

// Registry owns every live runner, indexed guild -> channel -> repeater ID.
type Registry struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes administrative operations.
	opMu sync.Mutex

	mu     sync.RWMutex
	guilds map[string]map[string]map[int64]*Runner

	// OnRemoved is called after a repeater was removed for a permanent reason.
	OnRemoved func(rep *models.Repeater, reason string)
}

func NewRegistry(ctx context.Context, deps Deps) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		deps:   deps.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
		guilds: make(map[string]map[string]map[int64]*Runner),
	}
}

// GuildAvailable loads the enabled repeaters of a guild and starts a runner for each.
// Calling it again replaces the running set, so gateway reconnects never duplicate runners.
func (g *Registry) GuildAvailable(ctx context.Context, guildID string) (int, error) {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	reps, err := g.deps.Store.LoadRepeaters(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("load repeaters for guild %s: %w", guildID, err)
	}

	g.stopGuild(guildID)
	started := 0
	for _, rep := range reps {
		if !rep.IsEnabled {
			continue
		}
		g.startRunner(rep)
		started++
	}
	log.Info().Str("guild", guildID).Int("runners", started).Msg("guild repeaters started")
	return started, nil
}

// GuildUnavailable stops every runner of the guild. Records are kept.
func (g *Registry) GuildUnavailable(guildID string) {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	g.stopGuild(guildID)
}

func (g *Registry) stopGuild(guildID string) {
	g.mu.Lock()
	channels := g.guilds[guildID]
	delete(g.guilds, guildID)
	g.mu.Unlock()
	for _, runners := range channels {
		for _, r := range runners {
			r.Stop()
		}
	}
}

func (g *Registry) startRunner(rep *models.Repeater) *Runner {
	r := newRunner(g.ctx, g.deps, rep, g.handleRemove)
	g.mu.Lock()
	channels, ok := g.guilds[rep.GuildID]
	if !ok {
		channels = make(map[string]map[int64]*Runner)
		g.guilds[rep.GuildID] = channels
	}
	runners, ok := channels[rep.ChannelID]
	if !ok {
		runners = make(map[int64]*Runner)
		channels[rep.ChannelID] = runners
	}
	old := runners[rep.ID]
	runners[rep.ID] = r
	g.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	r.Start()
	return r
}

// detach removes r from the index if it is still the registered runner for its ID.
func (g *Registry) detach(guildID, channelID string, id int64, r *Runner) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	runners := g.guilds[guildID][channelID]
	if runners == nil || (r != nil && runners[id] != r) {
		return false
	}
	if _, ok := runners[id]; !ok {
		return false
	}
	delete(runners, id)
	if len(runners) == 0 {
		delete(g.guilds[guildID], channelID)
	}
	if len(g.guilds[guildID]) == 0 {
		delete(g.guilds, guildID)
	}
	return true
}

func (g *Registry) lookup(guildID string, id int64) *Runner {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, runners := range g.guilds[guildID] {
		if r, ok := runners[id]; ok {
			return r
		}
	}
	return nil
}

// handleRemove runs on the runner's own goroutine; it must not take opMu.
func (g *Registry) handleRemove(r *Runner, reason string) {
	rep := r.Snapshot()
	g.detach(rep.GuildID, rep.ChannelID, rep.ID, r)
	if err := g.deps.Store.DeleteRepeater(g.ctx, rep.ID); err != nil && !errors.Is(err, ErrNotFound) {
		log.Error().Err(err).Int64("repeater", rep.ID).Msg("delete removed repeater failed")
	}
	log.Warn().Int64("repeater", rep.ID).Str("guild", rep.GuildID).Str("channel", rep.ChannelID).Str("reason", reason).Msg("repeater removed")
	if g.OnRemoved != nil {
		g.OnRemoved(rep, reason)
	}
}

// Create validates and stores a new repeater, starting it when enabled.
func (g *Registry) Create(ctx context.Context, rep *models.Repeater) (*models.Repeater, error) {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	rep = rep.Clone()
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = g.deps.Clock.Now()
	}
	if err := rep.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepeater, err)
	}
	id, err := g.deps.Store.InsertRepeater(ctx, rep)
	if err != nil {
		return nil, fmt.Errorf("insert repeater: %w", err)
	}
	rep.ID = id
	if rep.IsEnabled {
		g.startRunner(rep)
	}
	return rep.Clone(), nil
}

// Update replaces the configuration of an existing repeater. Runtime state
// (counters, posted messages) is carried over from the live runner.
func (g *Registry) Update(ctx context.Context, rep *models.Repeater) (*models.Repeater, error) {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	return g.update(ctx, rep)
}

func (g *Registry) update(ctx context.Context, rep *models.Repeater) (*models.Repeater, error) {
	if live := g.lookup(rep.GuildID, rep.ID); live != nil {
		var current, next *models.Repeater
		ok, err := live.Reconfigure(func(cur *models.Repeater) (*models.Repeater, error) {
			n, err := g.persist(ctx, rep, cur)
			if err != nil {
				return nil, err
			}
			current, next = cur, n
			if n.IsEnabled && n.ChannelID == cur.ChannelID {
				return n, nil
			}
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		if ok {
			if next.IsEnabled && next.ChannelID == current.ChannelID {
				return next.Clone(), nil
			}
			g.detach(current.GuildID, current.ChannelID, current.ID, live)
			g.afterUpdate(ctx, current, next)
			return next.Clone(), nil
		}
		// the runner stopped on its own meanwhile; fall back to the stored record
	}

	current, err := g.load(ctx, rep.GuildID, rep.ID)
	if err != nil {
		return nil, err
	}
	next, err := g.persist(ctx, rep, current)
	if err != nil {
		return nil, err
	}
	g.afterUpdate(ctx, current, next)
	return next.Clone(), nil
}

// persist merges the configuration of rep onto current, validates and stores it.
func (g *Registry) persist(ctx context.Context, rep, current *models.Repeater) (*models.Repeater, error) {
	next := withRuntime(rep, current)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRepeater, err)
	}
	if err := g.deps.Store.UpdateRepeater(ctx, next); err != nil {
		return nil, fmt.Errorf("update repeater %d: %w", next.ID, err)
	}
	return next, nil
}

// afterUpdate cleans up a moved sticky and starts the runner for an enabled record
// that has none.
func (g *Registry) afterUpdate(ctx context.Context, current, next *models.Repeater) {
	if next.ChannelID != current.ChannelID && current.LastMessageID != "" {
		g.deleteBestEffort(ctx, current.ChannelID, current.LastMessageID)
	}
	if next.IsEnabled {
		g.startRunner(next)
	}
}

// Toggle enables or disables a repeater. Disabled records stay stored.
func (g *Registry) Toggle(ctx context.Context, guildID string, id int64, enabled bool) (*models.Repeater, error) {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	current, err := g.find(ctx, guildID, id)
	if err != nil {
		return nil, err
	}
	current.IsEnabled = enabled
	return g.update(ctx, current)
}

// Delete stops and removes a repeater, cleaning up the message it posted last.
func (g *Registry) Delete(ctx context.Context, guildID string, id int64) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	current, err := g.find(ctx, guildID, id)
	if err != nil {
		return err
	}
	if live := g.lookup(guildID, id); live != nil {
		g.detach(current.GuildID, current.ChannelID, id, live)
		current = live.Halt()
	}
	if err := g.deps.Store.DeleteRepeater(ctx, id); err != nil {
		return fmt.Errorf("delete repeater %d: %w", id, err)
	}
	if current.LastMessageID != "" {
		g.deleteBestEffort(ctx, current.ChannelID, current.LastMessageID)
	}
	return nil
}

func (g *Registry) deleteBestEffort(ctx context.Context, channelID, messageID string) {
	if err := g.deps.Messenger.DeleteMessage(ctx, channelID, messageID); err != nil && !errors.Is(err, ErrMessageNotFound) {
		log.Debug().Err(err).Str("channel", channelID).Str("message_id", messageID).Msg("cleanup of sticky message failed")
	}
}

// Get returns a repeater of the guild, live state included.
func (g *Registry) Get(ctx context.Context, guildID string, id int64) (*models.Repeater, error) {
	return g.find(ctx, guildID, id)
}

func (g *Registry) find(ctx context.Context, guildID string, id int64) (*models.Repeater, error) {
	if live := g.lookup(guildID, id); live != nil {
		return live.Snapshot(), nil
	}
	return g.load(ctx, guildID, id)
}

func (g *Registry) load(ctx context.Context, guildID string, id int64) (*models.Repeater, error) {
	reps, err := g.deps.Store.LoadRepeaters(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load repeaters for guild %s: %w", guildID, err)
	}
	for _, rep := range reps {
		if rep.ID == id {
			return rep, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// List returns every stored repeater of the guild ordered by priority (highest first), then ID.
func (g *Registry) List(ctx context.Context, guildID string) ([]*models.Repeater, error) {
	reps, err := g.deps.Store.LoadRepeaters(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load repeaters for guild %s: %w", guildID, err)
	}
	for i, rep := range reps {
		if live := g.lookup(guildID, rep.ID); live != nil {
			reps[i] = live.Snapshot()
		}
	}
	sort.SliceStable(reps, func(i, j int) bool {
		if reps[i].Priority != reps[j].Priority {
			return reps[i].Priority > reps[j].Priority
		}
		return reps[i].ID < reps[j].ID
	})
	return reps, nil
}

// GetByIndex resolves the 1-based position shown by List.
func (g *Registry) GetByIndex(ctx context.Context, guildID string, index int) (*models.Repeater, error) {
	reps, err := g.List(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if index < 1 || index > len(reps) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNotFound, index, len(reps))
	}
	return reps[index-1], nil
}

// Runners returns the live runners bound to channelID.
func (g *Registry) Runners(guildID, channelID string) []*Runner {
	g.mu.RLock()
	defer g.mu.RUnlock()
	runners := g.guilds[guildID][channelID]
	out := make([]*Runner, 0, len(runners))
	for _, r := range runners {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (g *Registry) guildRunners(guildID string) []*Runner {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Runner
	for _, runners := range g.guilds[guildID] {
		for _, r := range runners {
			out = append(out, r)
		}
	}
	return out
}

func (g *Registry) allRunners() []*Runner {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Runner
	for _, channels := range g.guilds {
		for _, runners := range channels {
			for _, r := range runners {
				out = append(out, r)
			}
		}
	}
	return out
}

// RunnersTrackingThread returns the runners with a sticky in threadID.
func (g *Registry) RunnersTrackingThread(guildID, threadID string) []*Runner {
	var out []*Runner
	for _, r := range g.guildRunners(guildID) {
		if r.TracksThread(threadID) {
			out = append(out, r)
		}
	}
	return out
}

// ForgetThread drops a deleted thread from every tracker of the guild.
func (g *Registry) ForgetThread(ctx context.Context, guildID, threadID string) int {
	n := 0
	for _, r := range g.guildRunners(guildID) {
		if r.ForgetThread(ctx, threadID) {
			n++
		}
	}
	return n
}

// RemoveChannel deletes every repeater bound to a deleted channel.
func (g *Registry) RemoveChannel(ctx context.Context, guildID, channelID string) int {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	runners := g.guilds[guildID][channelID]
	delete(g.guilds[guildID], channelID)
	g.mu.Unlock()

	for id, r := range runners {
		r.Stop()
		if err := g.deps.Store.DeleteRepeater(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Int64("repeater", id).Msg("delete repeater of removed channel failed")
		}
	}

	// disabled records have no runner but are just as dead
	reps, err := g.deps.Store.LoadRepeaters(ctx, guildID)
	if err != nil {
		log.Error().Err(err).Str("guild", guildID).Msg("load repeaters for channel cleanup failed")
		return len(runners)
	}
	n := len(runners)
	for _, rep := range reps {
		if rep.ChannelID != channelID {
			continue
		}
		if _, live := runners[rep.ID]; live {
			continue
		}
		if err := g.deps.Store.DeleteRepeater(ctx, rep.ID); err == nil {
			n++
		}
	}
	return n
}

// SweepExpired removes runners whose age or trigger budget ran out while idle.
func (g *Registry) SweepExpired() int {
	now := g.deps.Clock.Now()
	n := 0
	for _, r := range g.allRunners() {
		if HasExpired(r.Snapshot(), now) {
			r.remove("expired")
			n++
		}
	}
	return n
}

// Status summarizes the live runners per guild.
func (g *Registry) Status() *models.EngineStatus {
	status := &models.EngineStatus{
		LastUpdated: g.deps.Clock.Now(),
		Guilds:      make(map[string]*models.GuildStatus),
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for guildID, channels := range g.guilds {
		gs := &models.GuildStatus{Channels: make(map[string]int)}
		for channelID, runners := range channels {
			gs.Channels[channelID] = len(runners)
			gs.Runners += len(runners)
			for _, r := range runners {
				gs.TrackedThread += r.threads.Len()
			}
		}
		status.Guilds[guildID] = gs
	}
	return status
}

// Close stops every runner.
func (g *Registry) Close() {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	g.cancel()
	g.mu.Lock()
	guilds := g.guilds
	g.guilds = make(map[string]map[string]map[int64]*Runner)
	g.mu.Unlock()
	for _, channels := range guilds {
		for _, runners := range channels {
			for _, r := range runners {
				r.Stop()
			}
		}
	}
}
