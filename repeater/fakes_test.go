package repeater

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"sticky-bot/models"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) // a Monday

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

// Advance moves the clock forward and runs due timers in order, each with the lock released.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

// pending counts armed timers.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type sentMessage struct {
	ChannelID string
	ID        string
	Content   string
	Silent    bool
}

type fakeMessenger struct {
	mu      sync.Mutex
	clock   *fakeClock
	nextID  int
	missing map[string]bool
	history map[string][]models.ChannelMessage // oldest first
	sendErr map[string]error
	delErr  error
	sent    []sentMessage
	deleted []string

	// when gate is set, SendMessage signals entered and waits for gate to close
	gate    chan struct{}
	entered chan struct{}
}

func newFakeMessenger(clock *fakeClock) *fakeMessenger {
	return &fakeMessenger{
		clock:   clock,
		missing: make(map[string]bool),
		history: make(map[string][]models.ChannelMessage),
		sendErr: make(map[string]error),
	}
}

func (m *fakeMessenger) newID() string {
	m.nextID++
	return fmt.Sprintf("m%d", m.nextID)
}

// post adds a user message to channelID and returns its ID.
func (m *fakeMessenger) post(channelID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	m.history[channelID] = append(m.history[channelID], models.ChannelMessage{ID: id, AuthorID: "user", Timestamp: m.clock.Now()})
	return id
}

func (m *fakeMessenger) Channel(_ context.Context, channelID string) (*models.ChannelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[channelID] {
		return nil, ErrChannelNotFound
	}
	return &models.ChannelInfo{ID: channelID, GuildID: "g1"}, nil
}

// holdSends makes the next sends block until release is called.
func (m *fakeMessenger) holdSends() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gate, m.entered = gate, make(chan struct{}, 1)
	return m.entered, func() {
		m.mu.Lock()
		m.gate, m.entered = nil, nil
		m.mu.Unlock()
		close(gate)
	}
}

func (m *fakeMessenger) SendMessage(_ context.Context, channelID, content string, silent bool) (string, error) {
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[channelID] {
		return "", ErrChannelNotFound
	}
	if err := m.sendErr[channelID]; err != nil {
		return "", err
	}
	id := m.newID()
	m.history[channelID] = append(m.history[channelID], models.ChannelMessage{ID: id, AuthorID: "bot", AuthorBot: true, Timestamp: m.clock.Now()})
	m.sent = append(m.sent, sentMessage{ChannelID: channelID, ID: id, Content: content, Silent: silent})
	return id, nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	history := m.history[channelID]
	i := slices.IndexFunc(history, func(msg models.ChannelMessage) bool { return msg.ID == messageID })
	if i < 0 {
		return ErrMessageNotFound
	}
	m.history[channelID] = slices.Delete(history, i, i+1)
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) LastMessageID(_ context.Context, channelID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[channelID] {
		return "", ErrChannelNotFound
	}
	history := m.history[channelID]
	if len(history) == 0 {
		return "", nil
	}
	return history[len(history)-1].ID, nil
}

func (m *fakeMessenger) RecentMessages(_ context.Context, channelID string, limit int) ([]models.ChannelMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[channelID] {
		return nil, ErrChannelNotFound
	}
	history := m.history[channelID]
	out := make([]models.ChannelMessage, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (m *fakeMessenger) sentTo(channelID string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

// botMessages lists the bot messages still present in channelID.
func (m *fakeMessenger) botMessages(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.history[channelID] {
		if msg.AuthorBot {
			out = append(out, msg.ID)
		}
	}
	return out
}

func (m *fakeMessenger) deletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.deleted)
}

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	reps   map[int64]*models.Repeater
}

func newFakeStore() *fakeStore { return &fakeStore{reps: make(map[int64]*models.Repeater)} }

func (s *fakeStore) LoadRepeaters(_ context.Context, guildID string) ([]*models.Repeater, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Repeater
	for _, rep := range s.reps {
		if rep.GuildID == guildID {
			out = append(out, rep.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Repeater) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *fakeStore) InsertRepeater(_ context.Context, rep *models.Repeater) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := rep.Clone()
	c.ID = s.nextID
	s.reps[c.ID] = c
	return c.ID, nil
}

func (s *fakeStore) UpdateRepeater(_ context.Context, rep *models.Repeater) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reps[rep.ID]; !ok {
		return ErrNotFound
	}
	s.reps[rep.ID] = rep.Clone()
	return nil
}

func (s *fakeStore) DeleteRepeater(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reps[id]; !ok {
		return ErrNotFound
	}
	delete(s.reps, id)
	return nil
}

func (s *fakeStore) UpdateStats(_ context.Context, id int64, count int, lastDisplayed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reps[id]
	if !ok {
		return ErrNotFound
	}
	rep.DisplayCount = count
	if !lastDisplayed.IsZero() {
		t := lastDisplayed
		rep.LastDisplayed = &t
	}
	return nil
}

func (s *fakeStore) SetLastMessage(_ context.Context, id int64, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reps[id]
	if !ok {
		return ErrNotFound
	}
	rep.LastMessageID = messageID
	return nil
}

func (s *fakeStore) SetThreadStickyMessages(_ context.Context, id int64, messages map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reps[id]
	if !ok {
		return ErrNotFound
	}
	rep.ThreadStickyMessages = messages
	return nil
}

func (s *fakeStore) get(id int64) (*models.Repeater, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reps[id]
	if !ok {
		return nil, false
	}
	return rep.Clone(), true
}

type harness struct {
	clock     *fakeClock
	messenger *fakeMessenger
	store     *fakeStore
	deps      Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock(baseTime)
	messenger := newFakeMessenger(clock)
	store := newFakeStore()
	return &harness{
		clock:     clock,
		messenger: messenger,
		store:     store,
		deps: Deps{
			Store:     store,
			Messenger: messenger,
			Clock:     clock,
			Location:  time.UTC,
			Spawn:     func(f func()) { f() },
		},
	}
}

type removal struct {
	mu      sync.Mutex
	reasons []string
}

func (r *removal) record(_ *Runner, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *removal) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

// startRunner stores rep, then builds and starts a runner for it.
func (h *harness) startRunner(t *testing.T, rep *models.Repeater) (*Runner, *removal) {
	t.Helper()
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = h.clock.Now()
	}
	id, err := h.store.InsertRepeater(context.Background(), rep)
	if err != nil {
		t.Fatalf("InsertRepeater() error = %v", err)
	}
	rep.ID = id
	removed := &removal{}
	r := newRunner(context.Background(), h.deps, rep, removed.record)
	r.Start()
	return r, removed
}

func intervalRepeater(every time.Duration) *models.Repeater {
	return &models.Repeater{
		GuildID:     "g1",
		ChannelID:   "c1",
		Message:     "read the rules",
		TriggerMode: models.TriggerTimeInterval,
		Interval:    every,
		IsEnabled:   true,
	}
}

func tod(t *testing.T, s string) *models.TimeOfDay {
	t.Helper()
	v, err := models.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q) error = %v", s, err)
	}
	return &v
}
