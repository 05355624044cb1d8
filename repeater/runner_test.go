package repeater

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sticky-bot/models"
)

func TestIntervalRunnerDeletesThenReposts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, _ := h.startRunner(t, intervalRepeater(5*time.Minute))

	h.clock.Advance(5*time.Minute - time.Second)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent before first interval = %d, want 0", got)
	}

	h.clock.Advance(time.Second)
	sent := h.messenger.sentTo("c1")
	if len(sent) != 1 {
		t.Fatalf("sent after first interval = %d, want 1", len(sent))
	}

	h.clock.Advance(5 * time.Minute)
	sent = h.messenger.sentTo("c1")
	if len(sent) != 2 {
		t.Fatalf("sent after second interval = %d, want 2", len(sent))
	}
	if got := h.messenger.deletedIDs(); !slices.Equal(got, []string{sent[0].ID}) {
		t.Fatalf("deleted = %v, want [%s]", got, sent[0].ID)
	}

	snap := r.Snapshot()
	if snap.DisplayCount != 2 || snap.LastMessageID != sent[1].ID {
		t.Fatalf("snapshot = count %d last %q, want 2 %q", snap.DisplayCount, snap.LastMessageID, sent[1].ID)
	}
	if snap.LastDisplayed == nil || !snap.LastDisplayed.Equal(baseTime.Add(10*time.Minute)) {
		t.Fatalf("LastDisplayed = %v, want %v", snap.LastDisplayed, baseTime.Add(10*time.Minute))
	}
	stored, _ := h.store.get(snap.ID)
	if stored.DisplayCount != 2 || stored.LastMessageID != sent[1].ID {
		t.Fatalf("stored = count %d last %q, want 2 %q", stored.DisplayCount, stored.LastMessageID, sent[1].ID)
	}
	if r.State() != StateArmed {
		t.Fatalf("State() = %v, want armed", r.State())
	}
}

func TestIntervalRunnerAlignsToStartTime(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(time.Hour)
	rep.StartTimeOfDay = tod(t, "12:30")
	h.startRunner(t, rep)

	h.clock.Advance(29 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent before anchor = %d, want 0", got)
	}
	h.clock.Advance(time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent at anchor = %d, want 1", got)
	}
	h.clock.Advance(time.Hour)
	if got := len(h.messenger.sentTo("c1")); got != 2 {
		t.Fatalf("sent one interval after anchor = %d, want 2", got)
	}
}

func TestNoRedundantSkipsWhileStickyIsLast(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(5 * time.Minute)
	rep.NoRedundant = true
	h.startRunner(t, rep)

	h.clock.Advance(5 * time.Minute)
	h.clock.Advance(5 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent with sticky still last = %d, want 1", got)
	}

	h.messenger.post("c1")
	h.clock.Advance(5 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 2 {
		t.Fatalf("sent after new message = %d, want 2", got)
	}
}

func TestMaxTriggersRemovesAfterLastSend(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(5 * time.Minute)
	rep.MaxTriggers = 3
	r, removed := h.startRunner(t, rep)

	h.clock.Advance(15 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 3 {
		t.Fatalf("sent = %d, want 3", got)
	}
	if removed.count() != 1 {
		t.Fatalf("removals = %d, want 1", removed.count())
	}
	if r.State() != StateStopped {
		t.Fatalf("State() = %v, want stopped", r.State())
	}
	if h.clock.pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", h.clock.pending())
	}

	h.clock.Advance(time.Hour)
	if got := len(h.messenger.sentTo("c1")); got != 3 {
		t.Fatalf("sent after removal = %d, want 3", got)
	}
}

func TestMaxAgeRemovesOnNextFire(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(5 * time.Minute)
	rep.MaxAge = 7 * time.Minute
	_, removed := h.startRunner(t, rep)

	h.clock.Advance(10 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent = %d, want 1", got)
	}
	if removed.count() != 1 || removed.reasons[0] != "expired" {
		t.Fatalf("removals = %v, want [expired]", removed.reasons)
	}
}

func TestOutsideTimeWindowKeepsSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(5 * time.Minute)
	rep.TimeConditions = []models.TimeCondition{{StartTime: tod(t, "13:00"), EndTime: tod(t, "14:00"), Enabled: true}}
	h.startRunner(t, rep)

	h.clock.Advance(55 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent outside window = %d, want 0", got)
	}
	if h.clock.pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", h.clock.pending())
	}
	h.clock.Advance(5 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent inside window = %d, want 1", got)
	}
}

func TestActiveConversationDefersPost(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(5 * time.Minute)
	rep.ConversationThreshold = 3
	h.startRunner(t, rep)

	h.clock.Advance(4*time.Minute + 30*time.Second)
	for range 3 {
		h.messenger.post("c1")
	}
	h.clock.Advance(30 * time.Second)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent during conversation = %d, want 0", got)
	}

	h.clock.Advance(DefaultConversationRecheck)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent after conversation cooled down = %d, want 1", got)
	}
}

func TestAfterMessagesNeedsFullThreshold(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(0)
	rep.TriggerMode = models.TriggerAfterMessages
	rep.ActivityThreshold = 10
	h.startRunner(t, rep)

	h.clock.Advance(10 * time.Second)
	for range 9 {
		h.messenger.post("c1")
	}
	h.clock.Advance(50 * time.Second)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent after 9 messages = %d, want 0", got)
	}

	h.messenger.post("c1")
	h.clock.Advance(time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent after 10 messages = %d, want 1", got)
	}

	h.clock.Advance(3 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent without new messages = %d, want 1", got)
	}
}

func TestAfterMessagesAtThresholdCap(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(0)
	rep.TriggerMode = models.TriggerAfterMessages
	rep.ActivityThreshold = models.MaxMessageThreshold
	if err := rep.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	h.startRunner(t, rep)

	h.clock.Advance(10 * time.Second)
	for range models.MaxMessageThreshold {
		h.messenger.post("c1")
	}
	h.clock.Advance(50 * time.Second)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent after %d messages = %d, want 1", models.MaxMessageThreshold, got)
	}
}

func TestActivityTriggerCountsOnlyRecentHumans(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(0)
	rep.TriggerMode = models.TriggerOnActivity
	rep.ActivityThreshold = 3
	rep.ActivityTimeWindow = 5 * time.Minute
	h.startRunner(t, rep)

	h.clock.Advance(30 * time.Second)
	for range 3 {
		h.messenger.post("c1")
	}
	h.clock.Advance(30 * time.Second)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent after burst = %d, want 1", got)
	}
	h.clock.Advance(3 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent without new activity = %d, want 1", got)
	}
}

func TestQuietTriggerWaitsForSilence(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(0)
	rep.TriggerMode = models.TriggerOnNoActivity
	rep.ActivityTimeWindow = 5 * time.Minute
	h.startRunner(t, rep)
	h.messenger.post("c1")

	h.clock.Advance(4 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent while channel busy = %d, want 0", got)
	}
	h.clock.Advance(time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent after quiet window = %d, want 1", got)
	}
	h.clock.Advance(3 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent while sticky is last = %d, want 1", got)
	}
}

func TestImmediateRepositionsAfterNewMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(0)
	rep.TriggerMode = models.TriggerImmediate
	r, _ := h.startRunner(t, rep)

	h.clock.Advance(0)
	sent := h.messenger.sentTo("c1")
	if len(sent) != 1 {
		t.Fatalf("sent at start = %d, want 1", len(sent))
	}
	if h.clock.pending() != 0 {
		t.Fatalf("pending timers = %d, want 0 without fallback interval", h.clock.pending())
	}

	h.messenger.post("c1")
	if out := r.Reposition(context.Background()); out != OutcomeSent {
		t.Fatalf("Reposition() = %v, want sent", out)
	}
	if got := h.messenger.deletedIDs(); !slices.Equal(got, []string{sent[0].ID}) {
		t.Fatalf("deleted = %v, want [%s]", got, sent[0].ID)
	}
	if out := r.Reposition(context.Background()); out != OutcomeNotDue {
		t.Fatalf("Reposition() with sticky last = %v, want not due", out)
	}
	if got := len(h.messenger.sentTo("c1")); got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
}

func TestBusyRunnerCoalescesReposition(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(0)
	rep.TriggerMode = models.TriggerImmediate
	r, _ := h.startRunner(t, rep)
	h.clock.Advance(0)
	h.messenger.post("c1")

	r.fireMu.Lock()
	if out := r.Reposition(context.Background()); out != OutcomeBusy {
		t.Fatalf("Reposition() while firing = %v, want busy", out)
	}
	if out := r.Reposition(context.Background()); out != OutcomeBusy {
		t.Fatalf("second Reposition() while firing = %v, want busy", out)
	}
	if !r.pending.Load() {
		t.Fatal("pending = false, want true")
	}
	r.fireMu.Unlock()

	if out := r.execute(context.Background(), sourceEvent); out != OutcomeSent {
		t.Fatalf("execute() = %v, want sent", out)
	}
	if r.pending.Load() {
		t.Fatal("pending = true after follow-up, want false")
	}
	if got := len(h.messenger.sentTo("c1")); got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
}

func TestPolledTickSkipsWhileFiring(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(0)
	rep.TriggerMode = models.TriggerAfterMessages
	rep.ActivityThreshold = 1
	r, _ := h.startRunner(t, rep)
	h.clock.Advance(10 * time.Second)
	h.messenger.post("c1")

	r.fireMu.Lock()
	h.clock.Advance(50 * time.Second)
	r.fireMu.Unlock()
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent while busy = %d, want 0", got)
	}
	if h.clock.pending() != 1 {
		t.Fatalf("pending timers after skipped tick = %d, want 1", h.clock.pending())
	}

	h.clock.Advance(time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 1 {
		t.Fatalf("sent on next poll = %d, want 1", got)
	}
}

func TestSkippedRecheckStaysArmed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(10 * time.Minute)
	rep.TriggerMode = models.TriggerImmediate
	rep.ConversationThreshold = 2
	r, _ := h.startRunner(t, rep)
	h.clock.Advance(0)

	h.messenger.post("c1")
	h.messenger.post("c1")
	if out := r.Reposition(context.Background()); out != OutcomeConversation {
		t.Fatalf("Reposition() = %v, want conversation", out)
	}

	r.fireMu.Lock()
	h.clock.Advance(30 * time.Second)
	r.fireMu.Unlock()
	if h.clock.pending() != 1 {
		t.Fatalf("pending timers after skipped recheck = %d, want 1", h.clock.pending())
	}

	h.clock.Advance(time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 2 {
		t.Fatalf("sent after conversation ended = %d, want 2", got)
	}
	if h.clock.pending() != 1 {
		t.Fatalf("pending timers = %d, want the fallback timer", h.clock.pending())
	}
}

func TestFailedRepositionKeepsFallbackTimer(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rep := intervalRepeater(10 * time.Minute)
	rep.TriggerMode = models.TriggerImmediate
	r, _ := h.startRunner(t, rep)
	h.clock.Advance(8 * time.Minute)

	h.messenger.post("c1")
	h.messenger.mu.Lock()
	h.messenger.sendErr["c1"] = errors.New("503 service unavailable")
	h.messenger.mu.Unlock()
	if out := r.Reposition(context.Background()); out != OutcomeFailed {
		t.Fatalf("Reposition() = %v, want failed", out)
	}
	h.messenger.mu.Lock()
	delete(h.messenger.sendErr, "c1")
	h.messenger.mu.Unlock()

	// the fallback armed at start still fires at 10m
	h.clock.Advance(2 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 2 {
		t.Fatalf("sent at fallback = %d, want 2", got)
	}
}

func TestSendFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantRemoved bool
	}{
		{name: "missing permissions", err: fmt.Errorf("post sticky: %w", ErrMissingPermissions), wantRemoved: true},
		{name: "channel gone", err: ErrChannelNotFound, wantRemoved: true},
		{name: "transient", err: errors.New("503 service unavailable"), wantRemoved: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			r, removed := h.startRunner(t, intervalRepeater(5*time.Minute))
			h.messenger.sendErr["c1"] = tt.err

			h.clock.Advance(5 * time.Minute)
			if got := removed.count() == 1; got != tt.wantRemoved {
				t.Fatalf("removed = %v, want %v", got, tt.wantRemoved)
			}
			if tt.wantRemoved {
				if r.State() != StateStopped || h.clock.pending() != 0 {
					t.Fatalf("state %v pending %d, want stopped with no timers", r.State(), h.clock.pending())
				}
				return
			}

			h.messenger.mu.Lock()
			delete(h.messenger.sendErr, "c1")
			h.messenger.mu.Unlock()
			h.clock.Advance(5 * time.Minute)
			if got := len(h.messenger.sentTo("c1")); got != 1 {
				t.Fatalf("sent after transient failure = %d, want 1", got)
			}
		})
	}
}

func TestMissingChannelRemovesRunner(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, removed := h.startRunner(t, intervalRepeater(5*time.Minute))
	h.messenger.missing["c1"] = true

	h.clock.Advance(5 * time.Minute)
	if removed.count() != 1 || !strings.Contains(removed.reasons[0], "channel not found") {
		t.Fatalf("removals = %v, want channel not found", removed.reasons)
	}
}

func TestStopCancelsSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, removed := h.startRunner(t, intervalRepeater(5*time.Minute))

	r.Stop()
	r.Stop()
	h.clock.Advance(time.Hour)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("sent after Stop() = %d, want 0", got)
	}
	if removed.count() != 0 {
		t.Fatalf("removals = %d, want 0", removed.count())
	}
	if out := r.PostInThread(context.Background(), "t1"); out != OutcomeStopped {
		t.Fatalf("PostInThread() after Stop() = %v, want stopped", out)
	}
}

func TestResetReplacesSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, _ := h.startRunner(t, intervalRepeater(5*time.Minute))

	h.clock.Advance(3 * time.Minute)
	next := r.Snapshot()
	next.Interval = 10 * time.Minute
	next.Message = "updated"
	r.Reset(next)

	h.clock.Advance(2 * time.Minute)
	if got := len(h.messenger.sentTo("c1")); got != 0 {
		t.Fatalf("stale timer sent = %d, want 0", got)
	}
	h.clock.Advance(5 * time.Minute)
	sent := h.messenger.sentTo("c1")
	if len(sent) != 1 || sent[0].Content != "updated" {
		t.Fatalf("sent = %+v, want one updated message", sent)
	}
}

func threadRepeater() *models.Repeater {
	rep := intervalRepeater(5 * time.Minute)
	rep.ThreadAutoSticky = true
	rep.ThreadOnlyMode = true
	rep.SuppressNotifications = true
	return rep
}

func TestThreadStickiesAreIndependent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, _ := h.startRunner(t, threadRepeater())
	ctx := context.Background()

	if h.clock.pending() != 0 {
		t.Fatalf("thread-only runner armed %d timers, want 0", h.clock.pending())
	}
	if out := r.PostInThread(ctx, "t1"); out != OutcomeSent {
		t.Fatalf("PostInThread(t1) = %v, want sent", out)
	}
	if out := r.PostInThread(ctx, "t2"); out != OutcomeSent {
		t.Fatalf("PostInThread(t2) = %v, want sent", out)
	}
	if out := r.PostInThread(ctx, "t1"); out != OutcomeRedundant {
		t.Fatalf("second PostInThread(t1) = %v, want redundant", out)
	}
	first, _ := r.ThreadStickyMessage("t1")
	other, _ := r.ThreadStickyMessage("t2")

	if out := r.RepositionThread(ctx, "t1"); out != OutcomeRedundant {
		t.Fatalf("RepositionThread(t1) while last = %v, want redundant", out)
	}
	h.messenger.post("t1")
	if out := r.RepositionThread(ctx, "t1"); out != OutcomeSent {
		t.Fatalf("RepositionThread(t1) = %v, want sent", out)
	}
	if got := h.messenger.deletedIDs(); !slices.Equal(got, []string{first}) {
		t.Fatalf("deleted = %v, want [%s]", got, first)
	}
	if got, _ := r.ThreadStickyMessage("t2"); got != other {
		t.Fatalf("t2 sticky = %q, want %q", got, other)
	}
	for _, s := range h.messenger.sentTo("t1") {
		if !s.Silent {
			t.Fatalf("thread sticky %s sent with notifications", s.ID)
		}
	}

	snap := r.Snapshot()
	if snap.DisplayCount != 3 || len(snap.ThreadStickyMessages) != 2 {
		t.Fatalf("snapshot = count %d threads %v, want 3 and 2 threads", snap.DisplayCount, snap.ThreadStickyMessages)
	}
	if !r.ForgetThread(ctx, "t2") {
		t.Fatal("ForgetThread(t2) = false, want true")
	}
	stored, _ := h.store.get(snap.ID)
	if len(stored.ThreadStickyMessages) != 1 {
		t.Fatalf("stored threads = %v, want one entry", stored.ThreadStickyMessages)
	}
}

func TestThreadLockDoesNotBlockOtherThreads(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, _ := h.startRunner(t, threadRepeater())

	mu := r.threadLocks.get("t1")
	mu.Lock()
	defer mu.Unlock()

	done := make(chan Outcome, 1)
	go func() { done <- r.PostInThread(context.Background(), "t2") }()
	select {
	case out := <-done:
		if out != OutcomeSent {
			t.Fatalf("PostInThread(t2) = %v, want sent", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PostInThread(t2) blocked on t1's lock")
	}
}

func TestDeletedThreadIsForgotten(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, removed := h.startRunner(t, threadRepeater())
	ctx := context.Background()

	r.PostInThread(ctx, "t1")
	h.messenger.missing["t1"] = true
	if out := r.RepositionThread(ctx, "t1"); out != OutcomeNotDue {
		t.Fatalf("RepositionThread() on deleted thread = %v, want not due", out)
	}
	if r.TracksThread("t1") {
		t.Fatal("TracksThread(t1) = true after thread vanished")
	}
	if removed.count() != 0 {
		t.Fatalf("removals = %d, want 0", removed.count())
	}
}

// Not parallel: swaps the global logger.
func TestPostedStickyLogsMessageID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })

	h := newHarness(t)
	h.startRunner(t, intervalRepeater(5*time.Minute))
	h.clock.Advance(5 * time.Minute)
	sent := h.messenger.sentTo("c1")
	if len(sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sent))
	}

	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("log line %q: %v", sc.Text(), err)
		}
		if entry["message"] == "sticky posted" {
			if entry["message_id"] != sent[0].ID {
				t.Fatalf("message_id = %v, want %s", entry["message_id"], sent[0].ID)
			}
			return
		}
	}
	t.Fatalf("no sticky posted entry in %q", buf.String())
}
