package repeater

import (
	"context"
	"fmt"
	"time"
)

// ActivityMonitor answers activity questions by reading recent channel history.
// It keeps no state of its own.
type ActivityMonitor struct {
	messenger Messenger
	clock     Clock
	limit     int
}

func NewActivityMonitor(messenger Messenger, clock Clock, historyLimit int) *ActivityMonitor {
	if clock == nil {
		clock = SystemClock()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ActivityMonitor{messenger: messenger, clock: clock, limit: historyLimit}
}

// countSince counts non-bot messages newer than since. It reads at least need
// messages, so a threshold above the configured limit stays reachable.
func (m *ActivityMonitor) countSince(ctx context.Context, channelID string, since time.Time, need int) (int, error) {
	history, err := m.messenger.RecentMessages(ctx, channelID, max(m.limit, need))
	if err != nil {
		return 0, fmt.Errorf("read history of %s: %w", channelID, err)
	}
	n := 0
	for _, msg := range history {
		if msg.AuthorBot {
			continue
		}
		if msg.Timestamp.After(since) {
			n++
		}
	}
	return n, nil
}

// HasSufficientActivity reports whether at least threshold messages arrived within window.
func (m *ActivityMonitor) HasSufficientActivity(ctx context.Context, channelID string, threshold int, window time.Duration) (bool, error) {
	return m.HasReachedMessageThreshold(ctx, channelID, threshold, m.clock.Now().Add(-window))
}

// IsChannelQuiet reports whether no messages arrived within window.
func (m *ActivityMonitor) IsChannelQuiet(ctx context.Context, channelID string, window time.Duration) (bool, error) {
	n, err := m.countSince(ctx, channelID, m.clock.Now().Add(-window), 1)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// HasReachedMessageThreshold reports whether at least threshold messages were posted after since.
func (m *ActivityMonitor) HasReachedMessageThreshold(ctx context.Context, channelID string, threshold int, since time.Time) (bool, error) {
	if threshold <= 0 {
		threshold = 1
	}
	n, err := m.countSince(ctx, channelID, since, threshold)
	if err != nil {
		return false, err
	}
	return n >= threshold, nil
}

// IsConversationActive reports whether the last minute carried at least threshold messages.
func (m *ActivityMonitor) IsConversationActive(ctx context.Context, channelID string, threshold int) (bool, error) {
	if threshold <= 0 {
		return false, nil
	}
	return m.HasReachedMessageThreshold(ctx, channelID, threshold, m.clock.Now().Add(-conversationWindow))
}
