package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"sticky-bot/models"
	"sticky-bot/repeater"
)

// RepeaterDB stores repeaters in sqlite. It implements repeater.Store.
type RepeaterDB struct {
	db *sql.DB
}

func NewRepeaterDB(db *sql.DB) *RepeaterDB {
	return &RepeaterDB{db: db}
}

const repeaterColumns = `id, guild_id, channel_id, message, trigger_mode, interval_seconds, start_time_of_day,
    activity_threshold, activity_window_seconds, conversation_threshold, time_conditions, forum_tag_conditions,
    max_age_seconds, max_triggers, no_redundant, thread_auto_sticky, thread_only_mode, suppress_notifications,
    is_enabled, priority, created_by, created_at, last_message_id, display_count, last_displayed,
    thread_sticky_messages`

type scanFunc func(dest ...any) error

// scanRepeater decodes one row. Malformed condition columns are logged and
// treated as absent so a bad row never keeps a repeater from loading.
func scanRepeater(scan scanFunc) (*models.Repeater, error) {
	var (
		rep                                  models.Repeater
		mode, startTime, timeConds, tagConds string
		threads                              string
		interval, window, maxAge, createdAt  int64
		noRedundant, autoSticky, threadOnly  int
		silent, enabled                      int
		lastDisplayed                        sql.NullInt64
	)
	err := scan(
		&rep.ID, &rep.GuildID, &rep.ChannelID, &rep.Message, &mode, &interval, &startTime,
		&rep.ActivityThreshold, &window, &rep.ConversationThreshold, &timeConds, &tagConds,
		&maxAge, &rep.MaxTriggers, &noRedundant, &autoSticky, &threadOnly, &silent,
		&enabled, &rep.Priority, &rep.CreatedBy, &createdAt, &rep.LastMessageID, &rep.DisplayCount, &lastDisplayed,
		&threads,
	)
	if err != nil {
		return nil, err
	}

	logger := log.With().Int64("repeater", rep.ID).Logger()
	if rep.TriggerMode, err = models.ParseTriggerMode(mode); err != nil {
		logger.Warn().Err(err).Msg("unknown trigger mode, falling back to interval")
	}
	rep.Interval = time.Duration(interval) * time.Second
	rep.ActivityTimeWindow = time.Duration(window) * time.Second
	rep.MaxAge = time.Duration(maxAge) * time.Second
	rep.CreatedAt = time.Unix(createdAt, 0)
	if lastDisplayed.Valid && lastDisplayed.Int64 > 0 {
		t := time.Unix(lastDisplayed.Int64, 0)
		rep.LastDisplayed = &t
	}
	rep.NoRedundant = noRedundant == 1
	rep.ThreadAutoSticky = autoSticky == 1
	rep.ThreadOnlyMode = threadOnly == 1
	rep.SuppressNotifications = silent == 1
	rep.IsEnabled = enabled == 1

	if startTime != "" {
		if t, err := models.ParseTimeOfDay(startTime); err != nil {
			logger.Warn().Err(err).Msg("invalid start time ignored")
		} else {
			rep.StartTimeOfDay = &t
		}
	}
	if rep.TimeConditions, err = models.ParseTimeConditions(timeConds); err != nil {
		logger.Warn().Err(err).Msg("invalid time conditions ignored")
		rep.TimeConditions = nil
	}
	if rep.ForumTagConditions, err = models.ParseForumTagCondition(tagConds); err != nil {
		logger.Warn().Err(err).Msg("invalid forum tag conditions ignored")
		rep.ForumTagConditions = nil
	}
	if threads != "" {
		if err := json.Unmarshal([]byte(threads), &rep.ThreadStickyMessages); err != nil {
			logger.Warn().Err(err).Msg("invalid thread sticky map ignored")
			rep.ThreadStickyMessages = nil
		}
	}
	return &rep, nil
}

// LoadRepeaters returns every repeater of a guild, enabled or not.
func (r *RepeaterDB) LoadRepeaters(ctx context.Context, guildID string) ([]*models.Repeater, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+repeaterColumns+` FROM repeaters WHERE guild_id = ? ORDER BY id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repeaters for guild %s: %w", guildID, err)
	}
	defer rows.Close()

	var reps []*models.Repeater
	for rows.Next() {
		rep, err := scanRepeater(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repeater row: %w", err)
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}

// GuildIDs lists every guild with at least one stored repeater.
func (r *RepeaterDB) GuildIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT guild_id FROM repeaters ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query guild ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan guild id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type encodedColumns struct {
	startTime, timeConds, tagConds, threads string
	lastDisplayed                           sql.NullInt64
}

func encodeColumns(rep *models.Repeater) (encodedColumns, error) {
	var (
		enc encodedColumns
		err error
	)
	if rep.StartTimeOfDay != nil {
		enc.startTime = rep.StartTimeOfDay.String()
	}
	if len(rep.TimeConditions) > 0 {
		if enc.timeConds, err = models.EncodeJSON(rep.TimeConditions); err != nil {
			return enc, fmt.Errorf("encode time conditions: %w", err)
		}
	}
	if rep.ForumTagConditions != nil {
		if enc.tagConds, err = models.EncodeJSON(rep.ForumTagConditions); err != nil {
			return enc, fmt.Errorf("encode forum tag conditions: %w", err)
		}
	}
	if len(rep.ThreadStickyMessages) > 0 {
		if enc.threads, err = models.EncodeJSON(rep.ThreadStickyMessages); err != nil {
			return enc, fmt.Errorf("encode thread stickies: %w", err)
		}
	}
	if rep.LastDisplayed != nil {
		enc.lastDisplayed = sql.NullInt64{Int64: rep.LastDisplayed.Unix(), Valid: true}
	}
	return enc, nil
}

// InsertRepeater stores a new repeater and returns its ID.
func (r *RepeaterDB) InsertRepeater(ctx context.Context, rep *models.Repeater) (int64, error) {
	enc, err := encodeColumns(rep)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
    INSERT INTO repeaters (
        guild_id, channel_id, message, trigger_mode, interval_seconds, start_time_of_day,
        activity_threshold, activity_window_seconds, conversation_threshold, time_conditions, forum_tag_conditions,
        max_age_seconds, max_triggers, no_redundant, thread_auto_sticky, thread_only_mode, suppress_notifications,
        is_enabled, priority, created_by, created_at, last_message_id, display_count, last_displayed,
        thread_sticky_messages
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.GuildID, rep.ChannelID, rep.Message, rep.TriggerMode.String(), seconds(rep.Interval), enc.startTime,
		rep.ActivityThreshold, seconds(rep.ActivityTimeWindow), rep.ConversationThreshold, enc.timeConds, enc.tagConds,
		seconds(rep.MaxAge), rep.MaxTriggers, boolToInt(rep.NoRedundant), boolToInt(rep.ThreadAutoSticky),
		boolToInt(rep.ThreadOnlyMode), boolToInt(rep.SuppressNotifications),
		boolToInt(rep.IsEnabled), rep.Priority, rep.CreatedBy, rep.CreatedAt.Unix(), rep.LastMessageID,
		rep.DisplayCount, enc.lastDisplayed, enc.threads,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert repeater: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRepeater rewrites every column of an existing repeater.
func (r *RepeaterDB) UpdateRepeater(ctx context.Context, rep *models.Repeater) error {
	enc, err := encodeColumns(rep)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
    UPDATE repeaters SET
        channel_id = ?, message = ?, trigger_mode = ?, interval_seconds = ?, start_time_of_day = ?,
        activity_threshold = ?, activity_window_seconds = ?, conversation_threshold = ?,
        time_conditions = ?, forum_tag_conditions = ?, max_age_seconds = ?, max_triggers = ?,
        no_redundant = ?, thread_auto_sticky = ?, thread_only_mode = ?, suppress_notifications = ?,
        is_enabled = ?, priority = ?, last_message_id = ?, display_count = ?, last_displayed = ?,
        thread_sticky_messages = ?
    WHERE id = ?`,
		rep.ChannelID, rep.Message, rep.TriggerMode.String(), seconds(rep.Interval), enc.startTime,
		rep.ActivityThreshold, seconds(rep.ActivityTimeWindow), rep.ConversationThreshold,
		enc.timeConds, enc.tagConds, seconds(rep.MaxAge), rep.MaxTriggers,
		boolToInt(rep.NoRedundant), boolToInt(rep.ThreadAutoSticky), boolToInt(rep.ThreadOnlyMode),
		boolToInt(rep.SuppressNotifications), boolToInt(rep.IsEnabled), rep.Priority,
		rep.LastMessageID, rep.DisplayCount, enc.lastDisplayed, enc.threads,
		rep.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update repeater %d: %w", rep.ID, err)
	}
	return expectRow(res, rep.ID)
}

func (r *RepeaterDB) DeleteRepeater(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM repeaters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete repeater %d: %w", id, err)
	}
	return expectRow(res, id)
}

func (r *RepeaterDB) UpdateStats(ctx context.Context, id int64, displayCount int, lastDisplayed time.Time) error {
	var last sql.NullInt64
	if !lastDisplayed.IsZero() {
		last = sql.NullInt64{Int64: lastDisplayed.Unix(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE repeaters SET display_count = ?, last_displayed = ? WHERE id = ?`, displayCount, last, id)
	if err != nil {
		return fmt.Errorf("failed to update stats of repeater %d: %w", id, err)
	}
	return expectRow(res, id)
}

func (r *RepeaterDB) SetLastMessage(ctx context.Context, id int64, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE repeaters SET last_message_id = ? WHERE id = ?`, messageID, id)
	if err != nil {
		return fmt.Errorf("failed to set last message of repeater %d: %w", id, err)
	}
	return expectRow(res, id)
}

func (r *RepeaterDB) SetThreadStickyMessages(ctx context.Context, id int64, messages map[string]string) error {
	encoded, err := models.EncodeJSON(messages)
	if err != nil {
		return fmt.Errorf("encode thread stickies: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE repeaters SET thread_sticky_messages = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to set thread stickies of repeater %d: %w", id, err)
	}
	return expectRow(res, id)
}

// PurgeExpired deletes repeaters that outlived max_age or used up max_triggers.
func (r *RepeaterDB) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
    DELETE FROM repeaters
    WHERE (max_age_seconds > 0 AND created_at + max_age_seconds < ?)
       OR (max_triggers > 0 AND display_count >= max_triggers)`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired repeaters: %w", err)
	}
	return res.RowsAffected()
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", repeater.ErrNotFound, id)
	}
	return nil
}

func seconds(d time.Duration) int64 { return int64(d / time.Second) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
