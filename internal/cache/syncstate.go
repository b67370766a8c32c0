package cache

import (
	"database/sql"
	"fmt"
	"time"
)

// Sync statuses recorded per project.
const (
	SyncUnknown  = "unknown"
	SyncSynced   = "synced"
	SyncConflict = "conflict"
	SyncOffline  = "offline"
)

// SyncState tracks the last reconciliation with the workstation.
type SyncState struct {
	ProjectName         string     `json:"project_name"`
	LastSync            *time.Time `json:"last_sync,omitempty"`
	LastMacRegistryHash string     `json:"last_mac_registry_hash,omitempty"`
	SyncStatus          string     `json:"sync_status"`
}

// GetSyncState reads a project's sync state. Returns a zero state with
// status unknown when the project has never synced.
func (db *DB) GetSyncState(projectName string) (*SyncState, error) {
	st := &SyncState{ProjectName: projectName, SyncStatus: SyncUnknown}
	var lastSync sql.NullTime
	var hash sql.NullString
	err := db.conn.QueryRow(`
		SELECT last_sync, last_mac_registry_hash, sync_status
		FROM sync_state WHERE project_name = ?
	`, projectName).Scan(&lastSync, &hash, &st.SyncStatus)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state for %s: %w", projectName, err)
	}
	if lastSync.Valid {
		t := lastSync.Time
		st.LastSync = &t
	}
	st.LastMacRegistryHash = hash.String
	return st, nil
}

// UpdateSyncState records the outcome of a sync pass.
func (db *DB) UpdateSyncState(projectName, registryHash, status string) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_state (project_name, last_sync, last_mac_registry_hash, sync_status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_name) DO UPDATE SET
			last_sync = excluded.last_sync,
			last_mac_registry_hash = excluded.last_mac_registry_hash,
			sync_status = excluded.sync_status
	`, projectName, time.Now().UTC(), registryHash, status)
	if err != nil {
		return fmt.Errorf("failed to update sync state for %s: %w", projectName, err)
	}
	return nil
}
