package repeater

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"sticky-bot/models"
)

// State is the lifecycle position of a Runner.
type State int32

const (
	StateArmed State = iota
	StateTriggering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateTriggering:
		return "triggering"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Outcome describes what a single fire did.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeOutsideWindow
	OutcomeConversation
	OutcomeRedundant
	OutcomeNotDue
	OutcomeFailed
	OutcomeRemoved
	OutcomeBusy
	OutcomeStopped
)

type fireSource int

const (
	sourceTimer fireSource = iota
	sourceRecheck
	sourceEvent
)

type removeFunc func(r *Runner, reason string)

// Runner owns the schedule of one repeater and performs its delete-then-send cycle.
type Runner struct {
	deps     Deps
	monitor  *ActivityMonitor
	onRemove removeFunc
	ctx      context.Context

	// fireMu serializes channel fires; at most one is in flight.
	fireMu sync.Mutex

	recMu   sync.RWMutex
	rep     *models.Repeater
	trigger Trigger

	threads     *ThreadTracker
	threadLocks keyedMutex

	timerMu  sync.Mutex
	timer    Timer
	timerSeq uint64

	state   atomic.Int32
	pending atomic.Bool
}

func newRunner(ctx context.Context, deps Deps, rep *models.Repeater, onRemove removeFunc) *Runner {
	deps = deps.withDefaults()
	rep = rep.Clone()
	threads := NewThreadTracker(rep.ThreadStickyMessages)
	rep.ThreadStickyMessages = nil
	return &Runner{
		deps:     deps,
		monitor:  NewActivityMonitor(deps.Messenger, deps.Clock, deps.HistoryLimit),
		onRemove: onRemove,
		ctx:      ctx,
		rep:      rep,
		trigger:  TriggerFor(rep, deps.PollInterval),
		threads:  threads,
	}
}

func (r *Runner) ID() int64 {
	r.recMu.RLock()
	defer r.recMu.RUnlock()
	return r.rep.ID
}

func (r *Runner) ChannelID() string {
	r.recMu.RLock()
	defer r.recMu.RUnlock()
	return r.rep.ChannelID
}

func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) Stopped() bool { return r.State() == StateStopped }

// Snapshot returns a copy of the runner's record including its thread stickies.
func (r *Runner) Snapshot() *models.Repeater {
	r.recMu.RLock()
	rep := r.rep.Clone()
	r.recMu.RUnlock()
	rep.ThreadStickyMessages = r.threads.Snapshot()
	return rep
}

func (r *Runner) currentTrigger() Trigger {
	r.recMu.RLock()
	defer r.recMu.RUnlock()
	return r.trigger
}

func (r *Runner) mutate(fn func(rep *models.Repeater)) {
	r.recMu.Lock()
	fn(r.rep)
	r.recMu.Unlock()
}

// Start arms the runner according to its trigger. Thread-only repeaters stay dormant.
func (r *Runner) Start() {
	if r.Stopped() {
		return
	}
	rep := r.Snapshot()
	if rep.ThreadOnlyMode {
		log.Debug().Int64("repeater", rep.ID).Msg("thread-only repeater armed for thread events")
		return
	}
	d, ok := r.currentTrigger().firstDelay(rep, r.deps.Clock.Now(), r.deps.Location)
	if !ok {
		return
	}
	r.schedule(d, r.tick)
}

// Stop disposes of the runner without waiting. An in-flight fire that has not
// reached its send returns early; Halt waits for one that has.
func (r *Runner) Stop() { r.stop() }

func (r *Runner) stop() bool {
	for {
		cur := r.state.Load()
		if State(cur) == StateStopped {
			return false
		}
		if r.state.CompareAndSwap(cur, int32(StateStopped)) {
			break
		}
	}
	r.cancelTimer()
	return true
}

// Halt stops the runner and waits for an in-flight fire to finish, so the
// returned record names the message that fire posted.
func (r *Runner) Halt() *models.Repeater {
	r.stop()
	r.fireMu.Lock()
	defer r.fireMu.Unlock()
	return r.Snapshot()
}

// Reconfigure calls fn with the live record while no fire is in flight. The record
// fn returns becomes the configuration and the runner re-arms from scratch; nil
// stops the runner. ok is false when the runner had already stopped.
func (r *Runner) Reconfigure(fn func(current *models.Repeater) (*models.Repeater, error)) (ok bool, err error) {
	r.fireMu.Lock()
	defer r.fireMu.Unlock()
	if r.Stopped() {
		return false, nil
	}
	next, err := fn(r.Snapshot())
	if err != nil {
		return true, err
	}
	if next == nil {
		r.stop()
		return true, nil
	}
	r.cancelTimer()
	next = next.Clone()
	next.ThreadStickyMessages = nil
	r.recMu.Lock()
	r.rep = next
	r.trigger = TriggerFor(next, r.deps.PollInterval)
	r.recMu.Unlock()
	r.Start()
	return true, nil
}

// Reset applies the configuration of rep (if non-nil) and re-arms from scratch.
// Counters and posted messages stay the runner's own.
func (r *Runner) Reset(rep *models.Repeater) {
	r.Reconfigure(func(current *models.Repeater) (*models.Repeater, error) {
		if rep == nil {
			return current, nil
		}
		return withRuntime(rep, current), nil
	})
}

// withRuntime returns the configuration of cfg carrying the runtime state of current.
// A channel move drops the tracked channel message.
func withRuntime(cfg, current *models.Repeater) *models.Repeater {
	next := cfg.Clone()
	next.ID = current.ID
	next.GuildID = current.GuildID
	next.CreatedAt = current.CreatedAt
	next.CreatedBy = current.CreatedBy
	next.DisplayCount = current.DisplayCount
	next.LastDisplayed = current.LastDisplayed
	next.LastMessageID = current.LastMessageID
	next.ActivityLastCheck = current.ActivityLastCheck
	next.ThreadStickyMessages = current.ThreadStickyMessages
	if next.ChannelID != current.ChannelID {
		next.LastMessageID = ""
	}
	return next
}

func (r *Runner) schedule(d time.Duration, fn func()) {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if r.Stopped() {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timerSeq++
	seq := r.timerSeq
	r.timer = r.deps.Clock.AfterFunc(d, func() {
		r.timerMu.Lock()
		current := seq == r.timerSeq
		if current {
			r.timer = nil
		}
		r.timerMu.Unlock()
		if current && !r.Stopped() {
			fn()
		}
	})
}

func (r *Runner) cancelTimer() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerSeq++
}

func (r *Runner) tick()    { r.execute(r.ctx, sourceTimer) }
func (r *Runner) recheck() { r.execute(r.ctx, sourceRecheck) }

// Reposition re-fires an immediate-mode sticky if it is no longer the channel's last message.
// A call that finds a fire in flight is coalesced into one follow-up check.
func (r *Runner) Reposition(ctx context.Context) Outcome {
	out := r.execute(ctx, sourceEvent)
	if out == OutcomeBusy {
		r.pending.Store(true)
	}
	return out
}

func (r *Runner) execute(ctx context.Context, src fireSource) Outcome {
	if r.Stopped() {
		return OutcomeStopped
	}
	trig := r.currentTrigger()
	tryOnly := src != sourceTimer || trig.polled()
	if tryOnly {
		if !r.fireMu.TryLock() {
			r.rearmSkipped(src, trig)
			return OutcomeBusy
		}
	} else {
		r.fireMu.Lock()
	}
	out := r.executeLocked(ctx, src, trig)
	r.fireMu.Unlock()

	if r.pending.CompareAndSwap(true, false) && !r.Stopped() {
		r.deps.Spawn(func() { r.Reposition(r.ctx) })
	}
	return out
}

// rearmSkipped keeps a timer-driven schedule alive when its tick lost the fire lock.
// The lock holder may arm its own timer afterwards, which replaces this one.
func (r *Runner) rearmSkipped(src fireSource, trig Trigger) {
	switch src {
	case sourceTimer:
		if d, ok := trig.nextDelay(); ok {
			r.schedule(d, r.tick)
		}
	case sourceRecheck:
		r.schedule(r.deps.ConversationRecheck, r.recheck)
	}
}

func (r *Runner) executeLocked(ctx context.Context, src fireSource, trig Trigger) Outcome {
	if r.Stopped() {
		return OutcomeStopped
	}
	r.state.CompareAndSwap(int32(StateArmed), int32(StateTriggering))
	defer r.state.CompareAndSwap(int32(StateTriggering), int32(StateArmed))

	rep := r.Snapshot()
	out := OutcomeNotDue
	due, err := r.gate(ctx, src, trig, rep)
	switch {
	case err != nil && IsPermanent(err):
		r.remove(err.Error())
		out = OutcomeRemoved
	case err != nil:
		log.Warn().Err(err).Int64("repeater", rep.ID).Str("channel", rep.ChannelID).Msg("trigger check failed")
	case due:
		out = r.cycle(ctx, rep)
	}

	if r.Stopped() || out == OutcomeRemoved {
		return out
	}
	if out == OutcomeConversation {
		r.schedule(r.deps.ConversationRecheck, r.recheck)
		return out
	}
	if src == sourceEvent && out != OutcomeSent {
		// nothing was posted; the armed fallback timer stays as it is
		return out
	}
	if d, ok := trig.nextDelay(); ok {
		r.schedule(d, r.tick)
	}
	return out
}

func (r *Runner) gate(ctx context.Context, src fireSource, trig Trigger, rep *models.Repeater) (bool, error) {
	switch {
	case src == sourceEvent:
		if rep.LastMessageID == "" {
			return true, nil
		}
		last, err := r.deps.Messenger.LastMessageID(ctx, rep.ChannelID)
		if err != nil {
			return false, err
		}
		return last != rep.LastMessageID, nil
	case src == sourceTimer && trig.polled():
		now := r.deps.Clock.Now()
		if !rep.ActivityLastCheck.IsZero() && now.Sub(rep.ActivityLastCheck) < r.deps.PollInterval/2 {
			return false, nil
		}
		r.mutate(func(m *models.Repeater) { m.ActivityLastCheck = now })
		return trig.due(ctx, triggerEnv{monitor: r.monitor, messenger: r.deps.Messenger}, rep, now)
	default:
		return true, nil
	}
}

// cycle is the channel fire sequence; callers hold fireMu.
func (r *Runner) cycle(ctx context.Context, rep *models.Repeater) Outcome {
	now := r.deps.Clock.Now()
	logger := log.With().Int64("repeater", rep.ID).Str("guild", rep.GuildID).Str("channel", rep.ChannelID).Logger()

	if HasExpired(rep, now) {
		r.remove("expired")
		return OutcomeRemoved
	}
	if !ShouldDisplayAtCurrentTime(rep, now.In(r.deps.Location)) {
		return OutcomeOutsideWindow
	}
	if rep.ThreadOnlyMode {
		return OutcomeNotDue
	}

	if _, err := r.deps.Messenger.Channel(ctx, rep.ChannelID); err != nil {
		if IsPermanent(err) {
			r.remove(err.Error())
			return OutcomeRemoved
		}
		logger.Warn().Err(err).Msg("resolve channel failed")
		return OutcomeFailed
	}

	if rep.ConversationThreshold > 0 {
		active, err := r.monitor.IsConversationActive(ctx, rep.ChannelID, rep.ConversationThreshold)
		if err != nil {
			logger.Warn().Err(err).Msg("conversation check failed")
		} else if active {
			logger.Debug().Msg("conversation active, deferring sticky")
			return OutcomeConversation
		}
	}

	if rep.NoRedundant && rep.LastMessageID != "" {
		last, err := r.deps.Messenger.LastMessageID(ctx, rep.ChannelID)
		if err != nil {
			logger.Warn().Err(err).Msg("read last message failed")
		} else if last == rep.LastMessageID {
			return OutcomeRedundant
		}
	}

	if r.Stopped() {
		return OutcomeStopped
	}
	if rep.LastMessageID != "" {
		err := r.deps.Messenger.DeleteMessage(ctx, rep.ChannelID, rep.LastMessageID)
		switch {
		case err == nil, errors.Is(err, ErrMessageNotFound):
			r.mutate(func(m *models.Repeater) { m.LastMessageID = "" })
		case IsPermanent(err):
			r.remove(err.Error())
			return OutcomeRemoved
		default:
			logger.Warn().Err(err).Str("message_id", rep.LastMessageID).Msg("delete previous sticky failed")
		}
	}

	id, err := r.deps.Messenger.SendMessage(ctx, rep.ChannelID, r.render(rep, rep.ChannelID, now), rep.SuppressNotifications)
	if err != nil {
		if IsPermanent(err) {
			r.remove(err.Error())
			return OutcomeRemoved
		}
		logger.Warn().Err(err).Msg("send sticky failed, retrying next cycle")
		return OutcomeFailed
	}
	logger.Debug().Str("message_id", id).Msg("sticky posted")
	r.recordDisplay(ctx, now, id, true)
	return OutcomeSent
}

func (r *Runner) render(rep *models.Repeater, channelID string, now time.Time) string {
	if r.deps.Renderer == nil {
		return rep.Message
	}
	return r.deps.Renderer.Render(rep.Message, models.TemplateData{
		GuildID:      rep.GuildID,
		ChannelID:    channelID,
		DisplayCount: rep.DisplayCount + 1,
		Now:          now.In(r.deps.Location),
	})
}

// recordDisplay bumps the stats after a successful send, persists them and
// removes the repeater once it has used up its triggers.
func (r *Runner) recordDisplay(ctx context.Context, now time.Time, messageID string, channel bool) {
	var (
		id        int64
		count     int
		displayed time.Time
		expired   bool
	)
	r.mutate(func(m *models.Repeater) {
		m.DisplayCount++
		if channel {
			t := now
			m.LastDisplayed = &t
			m.LastMessageID = messageID
		}
		id, count = m.ID, m.DisplayCount
		if m.LastDisplayed != nil {
			displayed = *m.LastDisplayed
		}
		expired = HasExpired(m, now)
	})

	if channel {
		if err := r.deps.Store.SetLastMessage(ctx, id, messageID); err != nil {
			log.Error().Err(err).Int64("repeater", id).Msg("persist last message failed")
		}
	}
	if err := r.deps.Store.UpdateStats(ctx, id, count, displayed); err != nil {
		log.Error().Err(err).Int64("repeater", id).Msg("persist stats failed")
	}
	if expired {
		r.remove("max triggers reached")
	}
}

func (r *Runner) remove(reason string) {
	if !r.stop() {
		return
	}
	if r.onRemove != nil {
		r.onRemove(r, reason)
	}
}

// ThreadStickyMessage returns the sticky tracked in threadID.
func (r *Runner) ThreadStickyMessage(threadID string) (string, bool) {
	return r.threads.Get(threadID)
}

// SetThreadStickyMessage records messageID for threadID and persists the map.
func (r *Runner) SetThreadStickyMessage(ctx context.Context, threadID, messageID string) {
	r.threads.Set(threadID, messageID)
	r.persistThreads(ctx)
}

// TracksThread reports whether the runner has a sticky in threadID.
func (r *Runner) TracksThread(threadID string) bool {
	_, ok := r.threads.Get(threadID)
	return ok
}

// ForgetThread drops a deleted thread from the tracker.
func (r *Runner) ForgetThread(ctx context.Context, threadID string) bool {
	if !r.threads.Delete(threadID) {
		return false
	}
	r.threadLocks.forget(threadID)
	r.persistThreads(ctx)
	return true
}

func (r *Runner) persistThreads(ctx context.Context) {
	if err := r.deps.Store.SetThreadStickyMessages(ctx, r.ID(), r.threads.Snapshot()); err != nil {
		log.Error().Err(err).Int64("repeater", r.ID()).Msg("persist thread stickies failed")
	}
}

// PostInThread posts the first sticky into a new thread.
func (r *Runner) PostInThread(ctx context.Context, threadID string) Outcome {
	return r.threadCycle(ctx, threadID, false)
}

// RepositionThread re-posts the thread's sticky if newer messages pushed it up.
func (r *Runner) RepositionThread(ctx context.Context, threadID string) Outcome {
	return r.threadCycle(ctx, threadID, true)
}

// threadCycle runs under the thread's own lock so different threads proceed concurrently.
// Failures inside one thread (archived, locked, deleted) never stop the runner.
func (r *Runner) threadCycle(ctx context.Context, threadID string, reposition bool) Outcome {
	if r.Stopped() {
		return OutcomeStopped
	}
	mu := r.threadLocks.get(threadID)
	mu.Lock()
	defer mu.Unlock()
	if r.Stopped() {
		return OutcomeStopped
	}

	rep := r.Snapshot()
	now := r.deps.Clock.Now()
	logger := log.With().Int64("repeater", rep.ID).Str("guild", rep.GuildID).Str("thread", threadID).Logger()

	if HasExpired(rep, now) {
		r.remove("expired")
		return OutcomeRemoved
	}
	if !ShouldDisplayAtCurrentTime(rep, now.In(r.deps.Location)) {
		return OutcomeOutsideWindow
	}

	tracked, ok := r.threads.Get(threadID)
	switch {
	case reposition && !ok:
		return OutcomeNotDue
	case reposition:
		last, err := r.deps.Messenger.LastMessageID(ctx, threadID)
		if err != nil {
			if errors.Is(err, ErrChannelNotFound) {
				r.ForgetThread(ctx, threadID)
				return OutcomeNotDue
			}
			logger.Warn().Err(err).Msg("read thread last message failed")
			return OutcomeFailed
		}
		if last == tracked {
			return OutcomeRedundant
		}
	case ok:
		return OutcomeRedundant
	}

	if ok {
		if err := r.deps.Messenger.DeleteMessage(ctx, threadID, tracked); err != nil && !errors.Is(err, ErrMessageNotFound) {
			logger.Warn().Err(err).Str("message_id", tracked).Msg("delete previous thread sticky failed")
		}
	}
	id, err := r.deps.Messenger.SendMessage(ctx, threadID, r.render(rep, threadID, now), rep.SuppressNotifications)
	if err != nil {
		if IsPermanent(err) {
			r.ForgetThread(ctx, threadID)
		}
		logger.Warn().Err(err).Msg("send thread sticky failed")
		return OutcomeFailed
	}
	r.SetThreadStickyMessage(ctx, threadID, id)
	r.recordDisplay(ctx, now, id, false)
	return OutcomeSent
}
