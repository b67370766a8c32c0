// Package config loads per-project configuration from
// <project>/.flowforge/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Version is the config document schema version.
const Version = "1.0.0"

// FileName is the config file name inside the project metadata directory.
const FileName = "config.json"

// Project holds per-project settings. It is immutable after Load.
type Project struct {
	// Name is the human-readable project name
	Name string `json:"name"`

	// MainBranch is the trunk branch merges target
	MainBranch string `json:"main_branch"`

	// ClaudeMDPath points at the project's assistant instructions file
	ClaudeMDPath string `json:"claude_md_path,omitempty"`

	// BuildCommand validates the tree after a merge; empty disables validation
	BuildCommand string `json:"build_command,omitempty"`

	// TestCommand runs the project's test suite
	TestCommand string `json:"test_command,omitempty"`

	// WorktreeBase is the directory (relative to the project root) that
	// holds feature worktrees
	WorktreeBase string `json:"worktree_base"`

	// DefaultPersona names the prompt persona used for executions
	DefaultPersona string `json:"default_persona,omitempty"`

	// ClaudeCommand is the assistant binary; ClaudeFlags its extra arguments
	ClaudeCommand string   `json:"claude_command"`
	ClaudeFlags   []string `json:"claude_flags,omitempty"`

	// MacPath is the project root on the workstation. Only present in
	// pi-local mirrors of the config.
	MacPath string `json:"mac_path,omitempty"`
}

// Config is the on-disk document.
type Config struct {
	Version string  `json:"version"`
	Project Project `json:"project"`
}

// Default returns a config with reference defaults for a project name.
func Default(name string) *Config {
	return &Config{
		Version: Version,
		Project: Project{
			Name:          name,
			MainBranch:    "main",
			WorktreeBase:  ".flowforge-worktrees",
			ClaudeCommand: "claude",
			ClaudeFlags:   []string{"--dangerously-skip-permissions"},
		},
	}
}

// Load reads the config for a project root, applying defaults for absent
// fields. A missing file yields the defaults.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".flowforge", FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(filepath.Base(projectRoot)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, filepath.Base(projectRoot))
}

// Parse decodes a config document, tolerating unknown fields and filling
// defaults for absent ones.
func Parse(data []byte, fallbackName string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = fallbackName
	}
	if cfg.Project.MainBranch == "" {
		cfg.Project.MainBranch = "main"
	}
	if cfg.Project.WorktreeBase == "" {
		cfg.Project.WorktreeBase = ".flowforge-worktrees"
	}
	if cfg.Project.ClaudeCommand == "" {
		cfg.Project.ClaudeCommand = "claude"
	}
	return &cfg, nil
}

// Save writes the config document under the project root.
func Save(projectRoot string, cfg *Config) error {
	dir := filepath.Join(projectRoot, ".flowforge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0o644)
}
