package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"sticky-bot/models"
)

const clearValue = "none"

type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(opts []*discordgo.ApplicationCommandInteractionDataOption) optionMap {
	m := make(optionMap, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func (m optionMap) str(name string) (string, bool) {
	opt, ok := m[name]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(opt.StringValue()), true
}

func (m optionMap) int(name string) (int, bool) {
	opt, ok := m[name]
	if !ok {
		return 0, false
	}
	return int(opt.IntValue()), true
}

func (m optionMap) bool(name string) (bool, bool) {
	opt, ok := m[name]
	if !ok {
		return false, false
	}
	return opt.BoolValue(), true
}

// optionError is a user input mistake, shown back to the user as is.
type optionError struct {
	err error
}

func (e *optionError) Error() string { return e.err.Error() }

func (e *optionError) Unwrap() error { return e.err }

// applySettings copies the given command options onto rep. Options that were
// not supplied leave the field untouched, so edit only changes what the user typed.
func applySettings(rep *models.Repeater, opts optionMap) error {
	if err := applyOptions(rep, opts); err != nil {
		return &optionError{err: err}
	}
	return nil
}

func applyOptions(rep *models.Repeater, opts optionMap) error {
	if opt, ok := opts["channel"]; ok {
		rep.ChannelID = opt.ChannelValue(nil).ID
	}
	if v, ok := opts.str("message"); ok {
		rep.Message = v
	}
	if v, ok := opts.str("mode"); ok {
		mode, err := models.ParseTriggerMode(v)
		if err != nil {
			return err
		}
		rep.TriggerMode = mode
	}
	if v, ok := opts.int("interval_minutes"); ok {
		rep.Interval = time.Duration(v) * time.Minute
	}
	if v, ok := opts.str("start_time"); ok {
		if v == "" || strings.EqualFold(v, clearValue) {
			rep.StartTimeOfDay = nil
		} else {
			tod, err := models.ParseTimeOfDay(v)
			if err != nil {
				return fmt.Errorf("start_time: %w", err)
			}
			rep.StartTimeOfDay = &tod
		}
	}
	if v, ok := opts.int("activity_threshold"); ok {
		rep.ActivityThreshold = v
	}
	if v, ok := opts.int("activity_window_minutes"); ok {
		rep.ActivityTimeWindow = time.Duration(v) * time.Minute
	}
	if v, ok := opts.int("conversation_threshold"); ok {
		rep.ConversationThreshold = v
	}
	if err := applyWindow(rep, opts); err != nil {
		return err
	}
	if err := applyTags(rep, opts); err != nil {
		return err
	}
	if v, ok := opts.int("max_triggers"); ok {
		rep.MaxTriggers = v
	}
	if v, ok := opts.int("max_age_hours"); ok {
		rep.MaxAge = time.Duration(v) * time.Hour
	}
	if v, ok := opts.bool("no_redundant"); ok {
		rep.NoRedundant = v
	}
	if v, ok := opts.bool("thread_auto_sticky"); ok {
		rep.ThreadAutoSticky = v
	}
	if v, ok := opts.bool("thread_only"); ok {
		rep.ThreadOnlyMode = v
		if v {
			rep.ThreadAutoSticky = true
		}
	}
	if v, ok := opts.bool("silent"); ok {
		rep.SuppressNotifications = v
	}
	if v, ok := opts.int("priority"); ok {
		rep.Priority = v
	}
	return nil
}

// applyWindow maintains the single command-managed time condition.
func applyWindow(rep *models.Repeater, opts optionMap) error {
	window, hasWindow := opts.str("time_window")
	days, hasDays := opts.str("days")
	if !hasWindow && !hasDays {
		return nil
	}
	if hasWindow && strings.EqualFold(window, clearValue) {
		rep.TimeConditions = nil
		return nil
	}

	cond := models.TimeCondition{Name: "window", Enabled: true}
	if len(rep.TimeConditions) > 0 {
		cond = rep.TimeConditions[0]
	}
	if hasWindow {
		start, end, err := parseWindow(window)
		if err != nil {
			return err
		}
		cond.StartTime, cond.EndTime = start, end
	}
	if hasDays {
		parsed, err := parseDays(days)
		if err != nil {
			return err
		}
		cond.DaysOfWeek = parsed
	}
	rep.TimeConditions = []models.TimeCondition{cond}
	return nil
}

func parseWindow(s string) (*models.TimeOfDay, *models.TimeOfDay, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return nil, nil, fmt.Errorf("time_window %q: want HH:MM-HH:MM", s)
	}
	start, err := models.ParseTimeOfDay(strings.TrimSpace(from))
	if err != nil {
		return nil, nil, fmt.Errorf("time_window: %w", err)
	}
	end, err := models.ParseTimeOfDay(strings.TrimSpace(to))
	if err != nil {
		return nil, nil, fmt.Errorf("time_window: %w", err)
	}
	return &start, &end, nil
}

func parseDays(s string) ([]int, error) {
	if strings.EqualFold(s, clearValue) || s == "" {
		return nil, nil
	}
	var days []int
	for _, part := range splitList(s) {
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("days: %q is not a weekday number 0-6", part)
		}
		days = append(days, d)
	}
	return days, nil
}

func applyTags(rep *models.Repeater, opts optionMap) error {
	required, hasRequired := opts.str("required_tags")
	excluded, hasExcluded := opts.str("excluded_tags")
	if !hasRequired && !hasExcluded {
		return nil
	}
	cond := models.ForumTagCondition{}
	if rep.ForumTagConditions != nil {
		cond = *rep.ForumTagConditions
	}
	if hasRequired {
		cond.RequiredTags = tagList(required)
	}
	if hasExcluded {
		cond.ExcludedTags = tagList(excluded)
	}
	if len(cond.RequiredTags) == 0 && len(cond.ExcludedTags) == 0 {
		rep.ForumTagConditions = nil
		return nil
	}
	rep.ForumTagConditions = &cond
	return nil
}

func tagList(s string) []string {
	if strings.EqualFold(s, clearValue) {
		return nil
	}
	return splitList(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
