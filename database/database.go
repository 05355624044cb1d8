package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // Import the SQLite3 driver
	"github.com/rs/zerolog/log"
)

// InitDB opens the repeater database at dbPath and makes sure the schema exists.
func InitDB(dbPath string) (*sql.DB, error) {
	// Ensure the directory for the database file exists.
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; one connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createRepeatersTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create repeaters table: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("connected to repeater database")
	return db, nil
}

func createRepeatersTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS repeaters (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        guild_id TEXT NOT NULL,
        channel_id TEXT NOT NULL,
        message TEXT NOT NULL,
        trigger_mode TEXT NOT NULL DEFAULT 'interval',
        interval_seconds INTEGER NOT NULL DEFAULT 0,
        start_time_of_day TEXT NOT NULL DEFAULT '',
        activity_threshold INTEGER NOT NULL DEFAULT 0,
        activity_window_seconds INTEGER NOT NULL DEFAULT 0,
        time_conditions TEXT NOT NULL DEFAULT '',
        forum_tag_conditions TEXT NOT NULL DEFAULT '',
        max_age_seconds INTEGER NOT NULL DEFAULT 0,
        max_triggers INTEGER NOT NULL DEFAULT 0,
        no_redundant INTEGER NOT NULL DEFAULT 0,
        thread_auto_sticky INTEGER NOT NULL DEFAULT 0,
        thread_only_mode INTEGER NOT NULL DEFAULT 0,
        is_enabled INTEGER NOT NULL DEFAULT 1,
        priority INTEGER NOT NULL DEFAULT 0,
        created_by TEXT NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL,
        last_message_id TEXT NOT NULL DEFAULT '',
        display_count INTEGER NOT NULL DEFAULT 0,
        last_displayed INTEGER,
        thread_sticky_messages TEXT NOT NULL DEFAULT ''
    );`
	if _, err := db.Exec(query); err != nil {
		return err
	}

	// Columns added after the first release. ALTER fails when the column is
	// already there, which is expected.
	migrations := []string{
		`ALTER TABLE repeaters ADD COLUMN conversation_threshold INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE repeaters ADD COLUMN suppress_notifications INTEGER NOT NULL DEFAULT 0`,
	}
	for _, m := range migrations {
		_, _ = db.Exec(m)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_repeaters_guild ON repeaters(guild_id);",
		"CREATE INDEX IF NOT EXISTS idx_repeaters_channel ON repeaters(guild_id, channel_id);",
	}
	for _, indexQuery := range indexes {
		if _, err := db.Exec(indexQuery); err != nil {
			log.Warn().Err(err).Msg("failed to create index")
		}
	}
	return nil
}
