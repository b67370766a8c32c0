package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), cfg.Project.Name)
	assert.Equal(t, "main", cfg.Project.MainBranch)
	assert.Equal(t, ".flowforge-worktrees", cfg.Project.WorktreeBase)
	assert.Equal(t, "claude", cfg.Project.ClaudeCommand)
}

func TestLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default("webapp")
	cfg.Project.MainBranch = "trunk"
	cfg.Project.BuildCommand = "make build"
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "webapp", loaded.Project.Name)
	assert.Equal(t, "trunk", loaded.Project.MainBranch)
	assert.Equal(t, "make build", loaded.Project.BuildCommand)
}

func TestParse_UnknownFieldsTolerated(t *testing.T) {
	data := []byte(`{
		"version": "1.0.0",
		"project": {"name": "x", "main_branch": "main", "future_field": true}
	}`)
	cfg, err := Parse(data, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Project.Name)
}

func TestParse_FillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"project":{}}`), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.Project.Name)
	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, "claude", cfg.Project.ClaudeCommand)
}

func TestRegistryBase_EnvOverride(t *testing.T) {
	t.Setenv(EnvRegistryPath, "/tmp/regs")
	assert.Equal(t, "/tmp/regs", RegistryBase())

	os.Unsetenv(EnvRegistryPath)
	assert.Equal(t, DefaultRegistryBase, RegistryBase())
}
