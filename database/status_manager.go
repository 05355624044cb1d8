package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sticky-bot/models"
)

// StatusManager writes a snapshot of the running engine to a JSON file.
type StatusManager struct {
	statusFile string
	mutex      sync.Mutex
	status     *models.EngineStatus
}

// NewStatusManager creates a new status manager.
func NewStatusManager(statusFile string) *StatusManager {
	return &StatusManager{
		statusFile: statusFile,
		status:     &models.EngineStatus{Guilds: make(map[string]*models.GuildStatus)},
	}
}

// Update replaces the snapshot that the next Save writes.
func (sm *StatusManager) Update(status *models.EngineStatus) {
	if status == nil {
		return
	}
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.status = status
}

// Save commits the current status to the JSON file.
func (sm *StatusManager) Save() error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if sm.statusFile == "" {
		return nil
	}

	// Ensure the directory exists.
	dir := filepath.Dir(sm.statusFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(sm.status, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	// Write to a temp file first so readers never see a half-written status.
	tmp := sm.statusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	if err := os.Rename(tmp, sm.statusFile); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}
