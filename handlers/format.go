package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"sticky-bot/models"
	"sticky-bot/utils"
)

const maxListedStickies = 25

// preview shortens a sticky message to n runes on a single line.
func preview(msg string, n int) string {
	msg = strings.Join(strings.Fields(msg), " ")
	runes := []rune(msg)
	if len(runes) <= n {
		return msg
	}
	return string(runes[:n-1]) + "…"
}

func modeText(rep *models.Repeater) string {
	switch rep.TriggerMode {
	case models.TriggerTimeInterval:
		return fmt.Sprintf("every %s", rep.Interval)
	case models.TriggerOnActivity:
		return fmt.Sprintf("after %d messages within %s", rep.ActivityThreshold, rep.ActivityTimeWindow)
	case models.TriggerOnNoActivity:
		return fmt.Sprintf("after %s of silence", rep.ActivityTimeWindow)
	case models.TriggerAfterMessages:
		return fmt.Sprintf("every %d messages", rep.ActivityThreshold)
	case models.TriggerImmediate:
		return "always last"
	default:
		return rep.TriggerMode.String()
	}
}

func listLine(index int, rep *models.Repeater) string {
	state := "🟢"
	if !rep.IsEnabled {
		state = "⏸️"
	}
	where := fmt.Sprintf("<#%s>", rep.ChannelID)
	if rep.ThreadOnlyMode {
		where += " threads"
	}
	return fmt.Sprintf("`%d.` %s %s · %s · shown %d× · %s", index, state, where, modeText(rep), rep.DisplayCount, preview(rep.Message, 40))
}

func listEmbed(reps []*models.Repeater) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Sticky messages",
		Color: utils.ColorInfo,
	}
	if len(reps) == 0 {
		embed.Description = "No sticky messages yet. Create one with `/sticky create`."
		return embed
	}
	lines := make([]string, 0, len(reps))
	for i, rep := range reps {
		if i == maxListedStickies {
			lines = append(lines, fmt.Sprintf("…and %d more", len(reps)-maxListedStickies))
			break
		}
		lines = append(lines, listLine(i+1, rep))
	}
	embed.Description = strings.Join(lines, "\n")
	embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d sticky messages", len(reps))}
	return embed
}

func infoEmbed(rep *models.Repeater, index int, timezone string) *discordgo.MessageEmbed {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Channel", Value: fmt.Sprintf("<#%s>", rep.ChannelID), Inline: true},
		{Name: "Trigger", Value: modeText(rep), Inline: true},
		{Name: "Enabled", Value: yesNo(rep.IsEnabled), Inline: true},
		{Name: "Shown", Value: fmt.Sprintf("%d×", rep.DisplayCount), Inline: true},
		{Name: "Last shown", Value: lastShown(rep, loc), Inline: true},
		{Name: "Priority", Value: fmt.Sprint(rep.Priority), Inline: true},
		{Name: "Threads", Value: threadText(rep), Inline: true},
		{Name: "Limits", Value: limitText(rep), Inline: true},
		{Name: "Time windows", Value: windowText(rep)},
	}
	if rep.ForumTagConditions != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Forum tags",
			Value: fmt.Sprintf("required: %s\nexcluded: %s", orNone(rep.ForumTagConditions.RequiredTags), orNone(rep.ForumTagConditions.ExcludedTags)),
		})
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Sticky #%d", index),
		Description: preview(rep.Message, 1000),
		Color:       utils.ColorInfo,
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("id %d · created by %s", rep.ID, rep.CreatedBy)},
		Timestamp:   rep.CreatedAt.Format(time.RFC3339),
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func lastShown(rep *models.Repeater, loc *time.Location) string {
	if rep.LastDisplayed == nil {
		return "never"
	}
	return rep.LastDisplayed.In(loc).Format("2006-01-02 15:04")
}

func threadText(rep *models.Repeater) string {
	switch {
	case rep.ThreadOnlyMode:
		return fmt.Sprintf("only (%d active)", len(rep.ThreadStickyMessages))
	case rep.ThreadAutoSticky:
		return fmt.Sprintf("yes (%d active)", len(rep.ThreadStickyMessages))
	default:
		return "no"
	}
}

func limitText(rep *models.Repeater) string {
	var parts []string
	if rep.MaxTriggers > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d posts", rep.DisplayCount, rep.MaxTriggers))
	}
	if rep.MaxAge > 0 {
		parts = append(parts, fmt.Sprintf("until %s", rep.CreatedAt.Add(rep.MaxAge).UTC().Format("2006-01-02 15:04 MST")))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "\n")
}

var weekdays = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func windowText(rep *models.Repeater) string {
	if len(rep.TimeConditions) == 0 {
		return "always"
	}
	lines := make([]string, 0, len(rep.TimeConditions))
	for _, c := range rep.TimeConditions {
		from, to := "00:00", "24:00"
		if c.StartTime != nil {
			from = c.StartTime.String()
		}
		if c.EndTime != nil {
			to = c.EndTime.String()
		}
		days := "every day"
		if len(c.DaysOfWeek) > 0 {
			names := make([]string, 0, len(c.DaysOfWeek))
			for _, d := range c.DaysOfWeek {
				names = append(names, weekdays[d%7])
			}
			days = strings.Join(names, ",")
		}
		line := fmt.Sprintf("%s-%s %s", from, to, days)
		if !c.Enabled {
			line += " (off)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func orNone(tags []string) string {
	if len(tags) == 0 {
		return "none"
	}
	return strings.Join(tags, ", ")
}
