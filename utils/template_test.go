package utils

import (
	"testing"
	"time"

	"sticky-bot/models"
)

func TestTemplateRendererRender(t *testing.T) {
	t.Parallel()

	data := models.TemplateData{
		GuildID:      "g1",
		ChannelID:    "c1",
		DisplayCount: 7,
		Now:          time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC),
	}
	r := TemplateRenderer{GuildName: func(id string) string {
		if id == "g1" {
			return "Lounge"
		}
		return ""
	}}

	tests := []struct {
		name string
		tmpl string
		data models.TemplateData
		want string
	}{
		{name: "plain", tmpl: "read the rules", data: data, want: "read the rules"},
		{name: "all placeholders", tmpl: "{guild} {channel} #{count} {date} {time}", data: data, want: "Lounge <#c1> #7 2025-03-10 09:05"},
		{name: "unknown placeholder kept", tmpl: "{user} in {channel}", data: data, want: "{user} in <#c1>"},
		{name: "name in data wins", tmpl: "{guild}", data: models.TemplateData{GuildID: "g1", GuildName: "Given"}, want: "Given"},
		{name: "falls back to id", tmpl: "{guild}", data: models.TemplateData{GuildID: "g2"}, want: "g2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Render(tt.tmpl, tt.data); got != tt.want {
				t.Fatalf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}
