package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time measured from midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
			return TimeOfDay(d), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

// TimeOfDayOf returns the wall-clock part of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	d := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	return TimeOfDay(d)
}

// On returns the instant at this time of day on the calendar day of t, in t's location.
func (d TimeOfDay) On(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location()).Add(time.Duration(d))
}

func (d TimeOfDay) String() string {
	total := int(time.Duration(d) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (d TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeCondition is one named posting window. Nil bounds mean "all day", nil days mean "every day".
type TimeCondition struct {
	Name       string     `json:"name"`
	StartTime  *TimeOfDay `json:"start_time,omitempty"`
	EndTime    *TimeOfDay `json:"end_time,omitempty"`
	DaysOfWeek []int      `json:"days_of_week,omitempty"` // 0 = Sunday
	Enabled    bool       `json:"enabled"`
}

func (c TimeCondition) clone() TimeCondition {
	out := c
	if c.StartTime != nil {
		v := *c.StartTime
		out.StartTime = &v
	}
	if c.EndTime != nil {
		v := *c.EndTime
		out.EndTime = &v
	}
	if c.DaysOfWeek != nil {
		out.DaysOfWeek = append([]int(nil), c.DaysOfWeek...)
	}
	return out
}

// ForumTagCondition filters which forum threads receive a sticky.
type ForumTagCondition struct {
	RequiredTags []string `json:"required_tags,omitempty"`
	ExcludedTags []string `json:"excluded_tags,omitempty"`
}

func (f ForumTagCondition) clone() ForumTagCondition {
	return ForumTagCondition{
		RequiredTags: append([]string(nil), f.RequiredTags...),
		ExcludedTags: append([]string(nil), f.ExcludedTags...),
	}
}

// ParseTimeConditions decodes the stored JSON blob. An empty blob yields no conditions.
func ParseTimeConditions(raw string) ([]TimeCondition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var conds []TimeCondition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		return nil, fmt.Errorf("decode time conditions: %w", err)
	}
	for _, c := range conds {
		for _, day := range c.DaysOfWeek {
			if day < 0 || day > 6 {
				return nil, fmt.Errorf("time condition %q: day of week %d out of range", c.Name, day)
			}
		}
	}
	return conds, nil
}

// ParseForumTagCondition decodes the stored JSON blob. An empty blob yields nil.
func ParseForumTagCondition(raw string) (*ForumTagCondition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var cond ForumTagCondition
	if err := json.Unmarshal([]byte(raw), &cond); err != nil {
		return nil, fmt.Errorf("decode forum tag conditions: %w", err)
	}
	return &cond, nil
}

// EncodeJSON marshals a condition value for storage; nil and empty values encode as "".
func EncodeJSON(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case []TimeCondition:
		if len(val) == 0 {
			return "", nil
		}
	case *ForumTagCondition:
		if val == nil {
			return "", nil
		}
	case map[string]string:
		if len(val) == 0 {
			return "", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
