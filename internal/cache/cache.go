// Package cache is the offline-first local store: cached project
// registries plus the queue of operations made while the workstation was
// unreachable.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultPath returns the default cache database location,
// ~/.flowforge-cache/flowforge.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".flowforge-cache", "flowforge.db")
}

// DB wraps the SQLite connection with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open creates or opens the cache database at the given path, creating
// the parent directory, enabling WAL mode, and running migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS projects (
    name            TEXT PRIMARY KEY,
    path            TEXT NOT NULL,
    cached_at       DATETIME NOT NULL,
    config_json     TEXT,
    registry_json   TEXT
);

-- Flat denormalized projection of each project's registry_json, rewritten
-- together with it and only read for fast per-feature queries.
CREATE TABLE IF NOT EXISTS features (
    id              TEXT NOT NULL,
    project_name    TEXT NOT NULL,
    data_json       TEXT NOT NULL,
    cached_at       DATETIME NOT NULL,
    PRIMARY KEY (id, project_name)
);

CREATE TABLE IF NOT EXISTS pending_operations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    project_name    TEXT NOT NULL,
    operation       TEXT NOT NULL,
    payload_json    TEXT NOT NULL,
    created_at      DATETIME NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    error_message   TEXT
);

CREATE TABLE IF NOT EXISTS sync_state (
    project_name            TEXT PRIMARY KEY,
    last_sync               DATETIME,
    last_mac_registry_hash  TEXT,
    sync_status             TEXT NOT NULL DEFAULT 'unknown'
);

CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_operations(status);
CREATE INDEX IF NOT EXISTS idx_pending_project ON pending_operations(project_name);
CREATE INDEX IF NOT EXISTS idx_features_project ON features(project_name);
`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Projects     int `json:"projects"`
	Features     int `json:"features"`
	PendingOps   int `json:"pending_ops"`
	SyncingOps   int `json:"syncing_ops"`
	CompletedOps int `json:"completed_ops"`
	FailedOps    int `json:"failed_ops"`
}

// GetStats counts rows across all cache tables.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM projects").Scan(&stats.Projects); err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM features").Scan(&stats.Features); err != nil {
		return nil, fmt.Errorf("failed to count features: %w", err)
	}

	rows, err := db.conn.Query("SELECT status, COUNT(*) FROM pending_operations GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count operations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch OpStatus(status) {
		case OpPending:
			stats.PendingOps = n
		case OpSyncing:
			stats.SyncingOps = n
		case OpCompleted:
			stats.CompletedOps = n
		case OpFailed:
			stats.FailedOps = n
		}
	}
	return stats, rows.Err()
}
