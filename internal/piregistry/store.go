// Package piregistry mirrors project registries on the pi under
// <base>/<project>/: registry.json plus a config.json whose mac_path
// field points back at the workstation checkout.
package piregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// Store reads and writes pi-local registry mirrors.
type Store struct {
	// Base is the mirror directory, one subdirectory per project
	Base string
}

// NewStore creates a store at the configured base
// (FLOWFORGE_REGISTRY_PATH, default /var/flowforge/registries).
func NewStore() *Store {
	return &Store{Base: config.RegistryBase()}
}

// ProjectDir returns the mirror directory for a project.
func (s *Store) ProjectDir(project string) string {
	return filepath.Join(s.Base, project)
}

// ListProjects returns the mirrored project names: subdirectories
// containing a registry.json.
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.Base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry base: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Base, entry.Name(), registry.FileName)); err == nil {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// LoadRegistry reads a project's mirrored registry document.
func (s *Store) LoadRegistry(project string) (*registry.Document, error) {
	data, err := os.ReadFile(filepath.Join(s.ProjectDir(project), registry.FileName))
	if err != nil {
		return nil, fmt.Errorf("read mirrored registry: %w", err)
	}
	return registry.ParseDocument(data)
}

// SaveRegistry writes a project's mirrored registry document via a
// temp-file rename.
func (s *Store) SaveRegistry(project string, doc *registry.Document) error {
	dir := s.ProjectDir(project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	return writeAtomic(filepath.Join(dir, registry.FileName), doc)
}

// LoadConfig reads a project's mirrored config. The mirror carries the
// extra mac_path field locating the workstation checkout.
func (s *Store) LoadConfig(project string) (*config.Config, error) {
	data, err := os.ReadFile(filepath.Join(s.ProjectDir(project), config.FileName))
	if err != nil {
		return nil, fmt.Errorf("read mirrored config: %w", err)
	}
	return config.Parse(data, project)
}

// SaveConfig writes a project's mirrored config.
func (s *Store) SaveConfig(project string, cfg *config.Config) error {
	dir := s.ProjectDir(project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	return writeAtomic(filepath.Join(dir, config.FileName), cfg)
}

// writeAtomic marshals v and renames a temp file over the target so
// watchers never observe a half-written document.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MacPath returns the workstation checkout path for a mirrored project.
func (s *Store) MacPath(project string) (string, error) {
	cfg, err := s.LoadConfig(project)
	if err != nil {
		return "", err
	}
	if cfg.Project.MacPath == "" {
		return "", fmt.Errorf("mirrored config for %s has no mac_path", project)
	}
	return cfg.Project.MacPath, nil
}
