package repeater

import (
	"context"
	"time"

	"sticky-bot/models"
)

// Trigger is the per-mode scheduling policy of a runner. Each variant carries only its own fields.
type Trigger interface {
	Mode() models.TriggerMode
	// firstDelay is the wait before the first channel fire; false means the runner stays dormant.
	firstDelay(rep *models.Repeater, now time.Time, loc *time.Location) (time.Duration, bool)
	// nextDelay is the wait after a completed fire; false means no timer is re-armed.
	nextDelay() (time.Duration, bool)
	// polled triggers evaluate due on every tick and skip the tick if a fire is in flight.
	polled() bool
	due(ctx context.Context, env triggerEnv, rep *models.Repeater, now time.Time) (bool, error)
}

type triggerEnv struct {
	monitor   *ActivityMonitor
	messenger Messenger
}

// TriggerFor builds the trigger variant described by a stored record.
func TriggerFor(rep *models.Repeater, poll time.Duration) Trigger {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	switch rep.TriggerMode {
	case models.TriggerOnActivity:
		return ActivityTrigger{Threshold: rep.ActivityThreshold, Window: rep.ActivityTimeWindow, Poll: poll}
	case models.TriggerOnNoActivity:
		return QuietTrigger{Window: rep.ActivityTimeWindow, Poll: poll}
	case models.TriggerAfterMessages:
		return MessageCountTrigger{Threshold: rep.ActivityThreshold, Poll: poll}
	case models.TriggerImmediate:
		return ImmediateTrigger{Every: rep.Interval}
	default:
		var anchor *models.TimeOfDay
		if rep.StartTimeOfDay != nil {
			a := *rep.StartTimeOfDay
			anchor = &a
		}
		return IntervalTrigger{Every: rep.Interval, Anchor: anchor}
	}
}

// IntervalTrigger fires every Every, aligned to Anchor (or to the creation time).
type IntervalTrigger struct {
	Every  time.Duration
	Anchor *models.TimeOfDay
}

func (IntervalTrigger) Mode() models.TriggerMode { return models.TriggerTimeInterval }

func (t IntervalTrigger) firstDelay(rep *models.Repeater, now time.Time, loc *time.Location) (time.Duration, bool) {
	if t.Every <= 0 {
		return 0, false
	}
	return alignedDelay(t.Every, t.anchor(rep, now, loc), now), true
}

func (t IntervalTrigger) anchor(rep *models.Repeater, now time.Time, loc *time.Location) time.Time {
	if t.Anchor != nil {
		return t.Anchor.On(now.In(loc))
	}
	return rep.CreatedAt
}

// alignedDelay returns the wait until the next instant anchor + k*every that lies after now.
func alignedDelay(every time.Duration, anchor, now time.Time) time.Duration {
	if anchor.IsZero() {
		return every
	}
	if anchor.After(now) {
		return anchor.Sub(now)
	}
	return every - now.Sub(anchor)%every
}

func (t IntervalTrigger) nextDelay() (time.Duration, bool) { return t.Every, t.Every > 0 }

func (IntervalTrigger) polled() bool { return false }

func (IntervalTrigger) due(context.Context, triggerEnv, *models.Repeater, time.Time) (bool, error) {
	return true, nil
}

// ActivityTrigger fires once Threshold messages arrived within Window since the last post.
type ActivityTrigger struct {
	Threshold int
	Window    time.Duration
	Poll      time.Duration
}

func (ActivityTrigger) Mode() models.TriggerMode { return models.TriggerOnActivity }

func (t ActivityTrigger) firstDelay(*models.Repeater, time.Time, *time.Location) (time.Duration, bool) {
	return t.Poll, true
}

func (t ActivityTrigger) nextDelay() (time.Duration, bool) { return t.Poll, true }

func (ActivityTrigger) polled() bool { return true }

func (t ActivityTrigger) due(ctx context.Context, env triggerEnv, rep *models.Repeater, now time.Time) (bool, error) {
	if rep.LastDisplayed != nil && rep.LastDisplayed.After(now.Add(-t.Window)) {
		return env.monitor.HasReachedMessageThreshold(ctx, rep.ChannelID, t.Threshold, *rep.LastDisplayed)
	}
	return env.monitor.HasSufficientActivity(ctx, rep.ChannelID, t.Threshold, t.Window)
}

// QuietTrigger fires once the channel has been silent for Window and the sticky is no longer last.
type QuietTrigger struct {
	Window time.Duration
	Poll   time.Duration
}

func (QuietTrigger) Mode() models.TriggerMode { return models.TriggerOnNoActivity }

func (t QuietTrigger) firstDelay(*models.Repeater, time.Time, *time.Location) (time.Duration, bool) {
	return t.Poll, true
}

func (t QuietTrigger) nextDelay() (time.Duration, bool) { return t.Poll, true }

func (QuietTrigger) polled() bool { return true }

func (t QuietTrigger) due(ctx context.Context, env triggerEnv, rep *models.Repeater, _ time.Time) (bool, error) {
	quiet, err := env.monitor.IsChannelQuiet(ctx, rep.ChannelID, t.Window)
	if err != nil || !quiet {
		return false, err
	}
	if rep.LastMessageID == "" {
		return true, nil
	}
	last, err := env.messenger.LastMessageID(ctx, rep.ChannelID)
	if err != nil {
		return false, err
	}
	return last != rep.LastMessageID, nil
}

// MessageCountTrigger fires after Threshold messages since the last post.
type MessageCountTrigger struct {
	Threshold int
	Poll      time.Duration
}

func (MessageCountTrigger) Mode() models.TriggerMode { return models.TriggerAfterMessages }

func (t MessageCountTrigger) firstDelay(*models.Repeater, time.Time, *time.Location) (time.Duration, bool) {
	return t.Poll, true
}

func (t MessageCountTrigger) nextDelay() (time.Duration, bool) { return t.Poll, true }

func (MessageCountTrigger) polled() bool { return true }

func (t MessageCountTrigger) due(ctx context.Context, env triggerEnv, rep *models.Repeater, _ time.Time) (bool, error) {
	since := rep.CreatedAt
	if rep.LastDisplayed != nil {
		since = *rep.LastDisplayed
	}
	return env.monitor.HasReachedMessageThreshold(ctx, rep.ChannelID, t.Threshold, since)
}

// ImmediateTrigger posts at start, then reacts to channel messages; Every > 0 adds a fallback timer.
type ImmediateTrigger struct {
	Every time.Duration
}

func (ImmediateTrigger) Mode() models.TriggerMode { return models.TriggerImmediate }

func (ImmediateTrigger) firstDelay(*models.Repeater, time.Time, *time.Location) (time.Duration, bool) {
	return 0, true
}

func (t ImmediateTrigger) nextDelay() (time.Duration, bool) { return t.Every, t.Every > 0 }

func (ImmediateTrigger) polled() bool { return false }

func (ImmediateTrigger) due(context.Context, triggerEnv, *models.Repeater, time.Time) (bool, error) {
	return true, nil
}
