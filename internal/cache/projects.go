package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// Project is one cached project row.
type Project struct {
	Name         string
	Path         string
	CachedAt     time.Time
	ConfigJSON   []byte
	RegistryJSON []byte
}

// CacheProject replaces the project row and rebuilds its per-feature
// rows from the registry document, all in one transaction.
func (db *DB) CacheProject(name, path string, configJSON, registryJSON []byte) error {
	doc, err := registry.ParseDocument(registryJSON)
	if err != nil {
		return fmt.Errorf("failed to parse registry for %s: %w", name, err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.Exec(`
		INSERT INTO projects (name, path, cached_at, config_json, registry_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			cached_at = excluded.cached_at,
			config_json = excluded.config_json,
			registry_json = excluded.registry_json
	`, name, path, now, string(configJSON), string(registryJSON))
	if err != nil {
		return fmt.Errorf("failed to cache project %s: %w", name, err)
	}

	if _, err := tx.Exec("DELETE FROM features WHERE project_name = ?", name); err != nil {
		return fmt.Errorf("failed to clear cached features for %s: %w", name, err)
	}
	for id, f := range doc.Features {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to marshal feature %s: %w", id, err)
		}
		_, err = tx.Exec(`
			INSERT INTO features (id, project_name, data_json, cached_at)
			VALUES (?, ?, ?, ?)
		`, id, name, string(data), now)
		if err != nil {
			return fmt.Errorf("failed to cache feature %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// GetProject retrieves a cached project. Returns nil, nil when the
// project is not cached.
func (db *DB) GetProject(name string) (*Project, error) {
	p := &Project{}
	var configJSON, registryJSON sql.NullString
	err := db.conn.QueryRow(`
		SELECT name, path, cached_at, config_json, registry_json
		FROM projects WHERE name = ?
	`, name).Scan(&p.Name, &p.Path, &p.CachedAt, &configJSON, &registryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", name, err)
	}
	p.ConfigJSON = []byte(configJSON.String)
	p.RegistryJSON = []byte(registryJSON.String)
	return p, nil
}

// ListProjects returns all cached projects ordered by name.
func (db *DB) ListProjects() ([]*Project, error) {
	rows, err := db.conn.Query(`
		SELECT name, path, cached_at, config_json, registry_json
		FROM projects ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p := &Project{}
		var configJSON, registryJSON sql.NullString
		if err := rows.Scan(&p.Name, &p.Path, &p.CachedAt, &configJSON, &registryJSON); err != nil {
			return nil, err
		}
		p.ConfigJSON = []byte(configJSON.String)
		p.RegistryJSON = []byte(registryJSON.String)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetFeature reads one denormalized feature row.
func (db *DB) GetFeature(projectName, id string) (*registry.Feature, error) {
	var data string
	err := db.conn.QueryRow(`
		SELECT data_json FROM features WHERE project_name = ? AND id = ?
	`, projectName, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature %s: %w", id, err)
	}
	f := &registry.Feature{}
	if err := json.Unmarshal([]byte(data), f); err != nil {
		return nil, fmt.Errorf("failed to decode feature %s: %w", id, err)
	}
	return f, nil
}

// ListFeatures reads the denormalized feature rows for a project.
func (db *DB) ListFeatures(projectName string) ([]*registry.Feature, error) {
	rows, err := db.conn.Query(`
		SELECT data_json FROM features WHERE project_name = ? ORDER BY id
	`, projectName)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var features []*registry.Feature
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		f := &registry.Feature{}
		if err := json.Unmarshal([]byte(data), f); err != nil {
			return nil, fmt.Errorf("failed to decode cached feature: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}
