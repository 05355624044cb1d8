package repeater

import (
	"context"
	"time"

	"sticky-bot/models"
)

// Store persists repeater records.
type Store interface {
	LoadRepeaters(ctx context.Context, guildID string) ([]*models.Repeater, error)
	InsertRepeater(ctx context.Context, rep *models.Repeater) (int64, error)
	UpdateRepeater(ctx context.Context, rep *models.Repeater) error
	DeleteRepeater(ctx context.Context, id int64) error
	UpdateStats(ctx context.Context, id int64, displayCount int, lastDisplayed time.Time) error
	SetLastMessage(ctx context.Context, id int64, messageID string) error
	SetThreadStickyMessages(ctx context.Context, id int64, messages map[string]string) error
}

// Messenger is the chat transport.
type Messenger interface {
	Channel(ctx context.Context, channelID string) (*models.ChannelInfo, error)
	SendMessage(ctx context.Context, channelID, content string, silent bool) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	LastMessageID(ctx context.Context, channelID string) (string, error)
	RecentMessages(ctx context.Context, channelID string, limit int) ([]models.ChannelMessage, error)
}

// Renderer expands placeholders in a repeater message.
type Renderer interface {
	Render(template string, data models.TemplateData) string
}

// Timer is a pending delayed call.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time so schedules can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// SystemClock is backed by the time package.
func SystemClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

const (
	DefaultPollInterval        = time.Minute
	DefaultConversationRecheck = 30 * time.Second
	DefaultThreadDebounce      = 2 * time.Second
	DefaultHistoryLimit        = 100
	conversationWindow         = time.Minute
)

// Deps bundles the collaborators and tunables shared by every runner.
type Deps struct {
	Store     Store
	Messenger Messenger
	Renderer  Renderer
	Clock     Clock
	Location  *time.Location

	PollInterval        time.Duration
	ConversationRecheck time.Duration
	ThreadDebounce      time.Duration
	HistoryLimit        int

	// Spawn runs fan-out work; nil means a new goroutine per call.
	Spawn func(func())
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.PollInterval <= 0 {
		d.PollInterval = DefaultPollInterval
	}
	if d.ConversationRecheck <= 0 {
		d.ConversationRecheck = DefaultConversationRecheck
	}
	if d.ThreadDebounce <= 0 {
		d.ThreadDebounce = DefaultThreadDebounce
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = DefaultHistoryLimit
	}
	if d.Spawn == nil {
		d.Spawn = func(f func()) { go f() }
	}
	return d
}
