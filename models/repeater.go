package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TriggerMode decides what causes a repeater to (re)post.
type TriggerMode int

const (
	TriggerTimeInterval TriggerMode = iota
	TriggerOnActivity
	TriggerOnNoActivity
	TriggerAfterMessages
	TriggerImmediate
)

var triggerModeNames = map[TriggerMode]string{
	TriggerTimeInterval:  "interval",
	TriggerOnActivity:    "activity",
	TriggerOnNoActivity:  "no_activity",
	TriggerAfterMessages: "after_messages",
	TriggerImmediate:     "immediate",
}

func (m TriggerMode) String() string {
	if name, ok := triggerModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseTriggerMode converts the stored name of a trigger mode back to its value.
func ParseTriggerMode(s string) (TriggerMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for mode, name := range triggerModeNames {
		if name == s {
			return mode, nil
		}
	}
	return TriggerTimeInterval, fmt.Errorf("unknown trigger mode %q", s)
}

const (
	MinInterval = time.Minute
	MaxPriority = 100
	// MaxMessageThreshold is one page of channel history, the most a single activity read can count.
	MaxMessageThreshold = 100
)

// Repeater is one configured sticky message.
type Repeater struct {
	ID        int64  `json:"id" db:"id"`
	GuildID   string `json:"guild_id" db:"guild_id"`
	ChannelID string `json:"channel_id" db:"channel_id"`
	Message   string `json:"message" db:"message"`

	TriggerMode           TriggerMode   `json:"trigger_mode" db:"trigger_mode"`
	Interval              time.Duration `json:"interval" db:"interval_seconds"`
	StartTimeOfDay        *TimeOfDay    `json:"start_time_of_day,omitempty" db:"start_time_of_day"`
	ActivityThreshold     int           `json:"activity_threshold" db:"activity_threshold"`
	ActivityTimeWindow    time.Duration `json:"activity_time_window" db:"activity_window_seconds"`
	ConversationThreshold int           `json:"conversation_threshold" db:"conversation_threshold"` // messages per minute; 0 disables detection

	TimeConditions     []TimeCondition    `json:"time_conditions,omitempty" db:"time_conditions"`
	ForumTagConditions *ForumTagCondition `json:"forum_tag_conditions,omitempty" db:"forum_tag_conditions"`
	MaxAge             time.Duration      `json:"max_age" db:"max_age_seconds"`   // 0 = no limit
	MaxTriggers        int                `json:"max_triggers" db:"max_triggers"` // 0 = no limit

	NoRedundant           bool `json:"no_redundant" db:"no_redundant"`
	ThreadAutoSticky      bool `json:"thread_auto_sticky" db:"thread_auto_sticky"`
	ThreadOnlyMode        bool `json:"thread_only_mode" db:"thread_only_mode"`
	SuppressNotifications bool `json:"suppress_notifications" db:"suppress_notifications"`
	IsEnabled             bool `json:"is_enabled" db:"is_enabled"`
	Priority              int  `json:"priority" db:"priority"`

	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	LastMessageID        string            `json:"last_message_id" db:"last_message_id"`
	DisplayCount         int               `json:"display_count" db:"display_count"`
	LastDisplayed        *time.Time        `json:"last_displayed,omitempty" db:"last_displayed"`
	ActivityLastCheck    time.Time         `json:"activity_last_check" db:"activity_last_check"`
	ThreadStickyMessages map[string]string `json:"thread_sticky_messages,omitempty" db:"thread_sticky_messages"` // thread ID -> message ID
}

// Clone returns a deep copy so callers never share slices or maps with a live runner.
func (r *Repeater) Clone() *Repeater {
	if r == nil {
		return nil
	}
	c := *r
	if r.StartTimeOfDay != nil {
		t := *r.StartTimeOfDay
		c.StartTimeOfDay = &t
	}
	if r.LastDisplayed != nil {
		t := *r.LastDisplayed
		c.LastDisplayed = &t
	}
	if r.TimeConditions != nil {
		c.TimeConditions = make([]TimeCondition, len(r.TimeConditions))
		for i, tc := range r.TimeConditions {
			c.TimeConditions[i] = tc.clone()
		}
	}
	if r.ForumTagConditions != nil {
		f := r.ForumTagConditions.clone()
		c.ForumTagConditions = &f
	}
	if r.ThreadStickyMessages != nil {
		c.ThreadStickyMessages = make(map[string]string, len(r.ThreadStickyMessages))
		for k, v := range r.ThreadStickyMessages {
			c.ThreadStickyMessages[k] = v
		}
	}
	return &c
}

// Validate checks the fields the scheduler depends on.
func (r *Repeater) Validate() error {
	var errs []error
	if strings.TrimSpace(r.GuildID) == "" {
		errs = append(errs, errors.New("guild_id is required"))
	}
	if strings.TrimSpace(r.ChannelID) == "" {
		errs = append(errs, errors.New("channel_id is required"))
	}
	if strings.TrimSpace(r.Message) == "" {
		errs = append(errs, errors.New("message is required"))
	}
	switch r.TriggerMode {
	case TriggerTimeInterval:
		if r.Interval < MinInterval {
			errs = append(errs, fmt.Errorf("interval must be at least %s", MinInterval))
		}
	case TriggerOnActivity:
		if r.ActivityThreshold <= 0 {
			errs = append(errs, errors.New("activity_threshold must be positive"))
		}
		if r.ActivityTimeWindow <= 0 {
			errs = append(errs, errors.New("activity_time_window must be positive"))
		}
	case TriggerOnNoActivity:
		if r.ActivityTimeWindow <= 0 {
			errs = append(errs, errors.New("activity_time_window must be positive"))
		}
	case TriggerAfterMessages:
		if r.ActivityThreshold <= 0 {
			errs = append(errs, errors.New("activity_threshold must be positive"))
		}
	case TriggerImmediate:
		if r.Interval != 0 && r.Interval < MinInterval {
			errs = append(errs, fmt.Errorf("interval must be 0 or at least %s", MinInterval))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown trigger mode %d", int(r.TriggerMode)))
	}
	if r.TriggerMode == TriggerOnActivity || r.TriggerMode == TriggerAfterMessages {
		if r.ActivityThreshold > MaxMessageThreshold {
			errs = append(errs, fmt.Errorf("activity_threshold must be at most %d", MaxMessageThreshold))
		}
	}
	if r.ConversationThreshold < 0 || r.ConversationThreshold > MaxMessageThreshold {
		errs = append(errs, fmt.Errorf("conversation_threshold must be between 0 and %d", MaxMessageThreshold))
	}
	if r.ThreadOnlyMode && !r.ThreadAutoSticky {
		errs = append(errs, errors.New("thread_only_mode requires thread_auto_sticky"))
	}
	if r.Priority < 0 || r.Priority > MaxPriority {
		errs = append(errs, fmt.Errorf("priority must be between 0 and %d", MaxPriority))
	}
	if r.MaxAge < 0 || r.MaxTriggers < 0 {
		errs = append(errs, errors.New("max_age and max_triggers must not be negative"))
	}
	return errors.Join(errs...)
}
