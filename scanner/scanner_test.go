package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sticky-bot/models"
	"sticky-bot/repeater"
)

type memStore struct {
	mu   sync.Mutex
	reps []*models.Repeater
}

func (s *memStore) LoadRepeaters(_ context.Context, guildID string) ([]*models.Repeater, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Repeater
	for _, rep := range s.reps {
		if rep.GuildID == guildID {
			out = append(out, rep.Clone())
		}
	}
	return out, nil
}

func (s *memStore) InsertRepeater(context.Context, *models.Repeater) (int64, error) { return 0, nil }
func (s *memStore) UpdateRepeater(context.Context, *models.Repeater) error          { return nil }
func (s *memStore) DeleteRepeater(context.Context, int64) error                     { return nil }
func (s *memStore) SetLastMessage(context.Context, int64, string) error             { return nil }
func (s *memStore) UpdateStats(context.Context, int64, int, time.Time) error        { return nil }
func (s *memStore) SetThreadStickyMessages(context.Context, int64, map[string]string) error {
	return nil
}

type fakeDiscord struct {
	mu       sync.Mutex
	threads  []*models.ChannelInfo
	channels map[string]*models.ChannelInfo
	listErr  error
	sent     []string // thread IDs
}

func (d *fakeDiscord) ActiveThreads(context.Context, string) ([]*models.ChannelInfo, error) {
	return d.threads, d.listErr
}

func (d *fakeDiscord) Channel(_ context.Context, id string) (*models.ChannelInfo, error) {
	if ch, ok := d.channels[id]; ok {
		return ch, nil
	}
	return nil, repeater.ErrChannelNotFound
}

func (d *fakeDiscord) SendMessage(_ context.Context, channelID, _ string, _ bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, channelID)
	return fmt.Sprintf("m%d", len(d.sent)), nil
}

func (d *fakeDiscord) DeleteMessage(context.Context, string, string) error   { return nil }
func (d *fakeDiscord) LastMessageID(context.Context, string) (string, error) { return "", nil }
func (d *fakeDiscord) RecentMessages(context.Context, string, int) ([]models.ChannelMessage, error) {
	return nil, nil
}

func threadRepeater(id int64, channelID string, tags *models.ForumTagCondition) *models.Repeater {
	return &models.Repeater{
		ID:                 id,
		GuildID:            "g1",
		ChannelID:          channelID,
		Message:            "read the rules",
		ThreadAutoSticky:   true,
		ThreadOnlyMode:     true,
		IsEnabled:          true,
		ForumTagConditions: tags,
		CreatedAt:          time.Now(),
	}
}

func newRegistry(t *testing.T, store *memStore, discord *fakeDiscord) *repeater.Registry {
	t.Helper()
	reg := repeater.NewRegistry(context.Background(), repeater.Deps{
		Store:     store,
		Messenger: discord,
		Spawn:     func(f func()) { f() },
	})
	t.Cleanup(reg.Close)
	if _, err := reg.GuildAvailable(context.Background(), "g1"); err != nil {
		t.Fatalf("GuildAvailable() error = %v", err)
	}
	return reg
}

func TestBackfillThreads(t *testing.T) {
	t.Parallel()
	store := &memStore{reps: []*models.Repeater{
		threadRepeater(1, "forum", &models.ForumTagCondition{RequiredTags: []string{"help"}}),
		threadRepeater(2, "text", nil),
	}}
	discord := &fakeDiscord{
		channels: map[string]*models.ChannelInfo{
			"forum": {ID: "forum", GuildID: "g1", IsForum: true},
			"text":  {ID: "text", GuildID: "g1"},
		},
		threads: []*models.ChannelInfo{
			{ID: "t1", ParentID: "forum", IsThread: true, AppliedTags: []string{"help"}},
			{ID: "t2", ParentID: "forum", IsThread: true, AppliedTags: []string{"other"}},
			{ID: "t3", ParentID: "text", IsThread: true},
			{ID: "t4", ParentID: "elsewhere", IsThread: true},
			{ID: "t1", ParentID: "forum", IsThread: true, AppliedTags: []string{"help"}},
		},
	}
	reg := newRegistry(t, store, discord)

	res, err := BackfillThreads(context.Background(), discord, reg, "g1")
	if err != nil {
		t.Fatalf("BackfillThreads() error = %v", err)
	}
	if res.Threads != 4 || res.Posted != 2 || res.Failed != 0 {
		t.Fatalf("BackfillThreads() = %+v, want 4 threads and 2 posts", res)
	}
	if len(discord.sent) != 2 || discord.sent[0] != "t1" || discord.sent[1] != "t3" {
		t.Fatalf("sent to %v, want [t1 t3]", discord.sent)
	}

	// a second pass finds every qualifying thread already tracked
	res, err = BackfillThreads(context.Background(), discord, reg, "g1")
	if err != nil || res.Posted != 0 {
		t.Fatalf("second BackfillThreads() = %+v, %v; want no posts", res, err)
	}
}

func TestBackfillThreadsListError(t *testing.T) {
	t.Parallel()
	discord := &fakeDiscord{listErr: errors.New("gateway down")}
	reg := newRegistry(t, &memStore{}, discord)

	if _, err := BackfillThreads(context.Background(), discord, reg, "g1"); err == nil {
		t.Fatal("BackfillThreads() error = nil, want list failure")
	}
}

func TestBackfillThreadsSkipsUnresolvedParent(t *testing.T) {
	t.Parallel()
	store := &memStore{reps: []*models.Repeater{threadRepeater(1, "gone", nil)}}
	discord := &fakeDiscord{threads: []*models.ChannelInfo{{ID: "t1", ParentID: "gone", IsThread: true}}}
	reg := newRegistry(t, store, discord)

	res, err := BackfillThreads(context.Background(), discord, reg, "g1")
	if err != nil || res.Posted != 0 || len(discord.sent) != 0 {
		t.Fatalf("BackfillThreads() = %+v, %v; sent %v; want nothing posted", res, err, discord.sent)
	}
}
