package grpc

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"sticky-bot/models"
)

// Summary is the admin view of one repeater.
type Summary struct {
	ID            int64
	ChannelID     string
	Mode          string
	Message       string
	Enabled       bool
	Priority      int
	DisplayCount  int
	LastDisplayed time.Time
	Threads       int
}

func summaryOf(rep *models.Repeater) Summary {
	s := Summary{
		ID:           rep.ID,
		ChannelID:    rep.ChannelID,
		Mode:         rep.TriggerMode.String(),
		Message:      rep.Message,
		Enabled:      rep.IsEnabled,
		Priority:     rep.Priority,
		DisplayCount: rep.DisplayCount,
		Threads:      len(rep.ThreadStickyMessages),
	}
	if rep.LastDisplayed != nil {
		s.LastDisplayed = *rep.LastDisplayed
	}
	return s
}

func (s Summary) fields() map[string]any {
	m := map[string]any{
		"id":            s.ID,
		"channel_id":    s.ChannelID,
		"mode":          s.Mode,
		"message":       s.Message,
		"enabled":       s.Enabled,
		"priority":      s.Priority,
		"display_count": s.DisplayCount,
		"threads":       s.Threads,
	}
	if !s.LastDisplayed.IsZero() {
		m["last_displayed"] = s.LastDisplayed.UTC().Format(time.RFC3339)
	}
	return m
}

func summaryFrom(st *structpb.Struct) Summary {
	f := st.GetFields()
	s := Summary{
		ID:           int64(f["id"].GetNumberValue()),
		ChannelID:    f["channel_id"].GetStringValue(),
		Mode:         f["mode"].GetStringValue(),
		Message:      f["message"].GetStringValue(),
		Enabled:      f["enabled"].GetBoolValue(),
		Priority:     int(f["priority"].GetNumberValue()),
		DisplayCount: int(f["display_count"].GetNumberValue()),
		Threads:      int(f["threads"].GetNumberValue()),
	}
	if raw := f["last_displayed"].GetStringValue(); raw != "" {
		s.LastDisplayed, _ = time.Parse(time.RFC3339, raw)
	}
	return s
}
