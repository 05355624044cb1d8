package repeater

import (
	"slices"
	"time"

	"sticky-bot/models"
)

// ShouldDisplayAtCurrentTime reports whether any enabled time condition admits now.
// now must already be in the guild's local time. No enabled conditions means no restriction.
func ShouldDisplayAtCurrentTime(rep *models.Repeater, now time.Time) bool {
	if rep == nil || len(rep.TimeConditions) == 0 {
		return true
	}
	active := 0
	for _, cond := range rep.TimeConditions {
		if !cond.Enabled {
			continue
		}
		active++
		if conditionMatches(cond, now) {
			return true
		}
	}
	return active == 0
}

func conditionMatches(cond models.TimeCondition, now time.Time) bool {
	if len(cond.DaysOfWeek) > 0 && !slices.Contains(cond.DaysOfWeek, int(now.Weekday())) {
		return false
	}
	tod := models.TimeOfDayOf(now)
	switch {
	case cond.StartTime == nil && cond.EndTime == nil:
		return true
	case cond.StartTime == nil:
		return tod <= *cond.EndTime
	case cond.EndTime == nil:
		return tod >= *cond.StartTime
	case *cond.StartTime <= *cond.EndTime:
		return tod >= *cond.StartTime && tod <= *cond.EndTime
	default:
		// window wraps midnight, e.g. 22:00-02:00
		return tod >= *cond.StartTime || tod <= *cond.EndTime
	}
}

// ShouldDisplayForForumTags reports whether a thread carrying threadTags qualifies for an auto sticky.
func ShouldDisplayForForumTags(rep *models.Repeater, threadTags []string) bool {
	if rep == nil || !rep.ThreadAutoSticky {
		return false
	}
	cond := rep.ForumTagConditions
	if cond == nil {
		return true
	}
	if len(cond.RequiredTags) > 0 {
		matched := false
		for _, tag := range threadTags {
			if slices.Contains(cond.RequiredTags, tag) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, tag := range threadTags {
		if slices.Contains(cond.ExcludedTags, tag) {
			return false
		}
	}
	return true
}

// HasExpired reports whether the repeater has outlived MaxAge or used up MaxTriggers.
func HasExpired(rep *models.Repeater, now time.Time) bool {
	if rep == nil {
		return false
	}
	if rep.MaxAge > 0 && !rep.CreatedAt.IsZero() && now.Sub(rep.CreatedAt) > rep.MaxAge {
		return true
	}
	return rep.MaxTriggers > 0 && rep.DisplayCount >= rep.MaxTriggers
}
