package piregistry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/registry"
)

func TestStore_RegistryRoundTrip(t *testing.T) {
	s := &Store{Base: t.TempDir()}

	doc := registry.NewDocument()
	doc.Features["dark-mode"] = &registry.Feature{ID: "dark-mode", Title: "Dark mode", Status: registry.StatusPlanned}
	require.NoError(t, s.SaveRegistry("webapp", doc))

	loaded, err := s.LoadRegistry("webapp")
	require.NoError(t, err)
	require.Contains(t, loaded.Features, "dark-mode")
	assert.Equal(t, "Dark mode", loaded.Features["dark-mode"].Title)

	// no stray temp file left behind
	entries, err := os.ReadDir(s.ProjectDir("webapp"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestStore_ConfigWithMacPath(t *testing.T) {
	s := &Store{Base: t.TempDir()}

	cfg := config.Default("webapp")
	cfg.Project.MacPath = "/Users/dev/projects/webapp"
	require.NoError(t, s.SaveConfig("webapp", cfg))

	macPath, err := s.MacPath("webapp")
	require.NoError(t, err)
	assert.Equal(t, "/Users/dev/projects/webapp", macPath)

	// a mirror without mac_path is an error, not a silent empty string
	require.NoError(t, s.SaveConfig("api", config.Default("api")))
	_, err = s.MacPath("api")
	assert.ErrorContains(t, err, "mac_path")
}

func TestStore_ListProjects(t *testing.T) {
	s := &Store{Base: t.TempDir()}
	require.NoError(t, s.SaveRegistry("webapp", registry.NewDocument()))

	// config alone does not make a mirror
	require.NoError(t, s.SaveConfig("api", config.Default("api")))

	names, err := s.ListProjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"webapp"}, names)
}

func TestStore_ListProjects_MissingBase(t *testing.T) {
	s := &Store{Base: filepath.Join(t.TempDir(), "nope")}
	names, err := s.ListProjects()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestNewStore_EnvOverride(t *testing.T) {
	t.Setenv(config.EnvRegistryPath, "/tmp/custom-registries")
	assert.Equal(t, "/tmp/custom-registries", NewStore().Base)
}

func TestWatcher_FiresOnRegistryWrite(t *testing.T) {
	base := t.TempDir()
	s := &Store{Base: base}
	require.NoError(t, s.SaveRegistry("webapp", registry.NewDocument()))

	var mu sync.Mutex
	var changed []string
	w, err := Watch(base, func(project string) {
		mu.Lock()
		changed = append(changed, project)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Close()

	doc := registry.NewDocument()
	doc.Features["auth"] = &registry.Feature{ID: "auth", Title: "Auth", Status: registry.StatusPlanned}
	require.NoError(t, s.SaveRegistry("webapp", doc))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) == 1 && changed[0] == "webapp"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_PicksUpNewProjectDirs(t *testing.T) {
	base := t.TempDir()
	s := &Store{Base: base}

	var mu sync.Mutex
	var changed []string
	w, err := Watch(base, func(project string) {
		mu.Lock()
		changed = append(changed, project)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Close()

	// the project directory does not exist yet at watch time
	require.NoError(t, s.SaveRegistry("brand-new", registry.NewDocument()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) >= 1 && changed[0] == "brand-new"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "webapp"), 0o755))

	var mu sync.Mutex
	fired := false
	w, err := Watch(base, func(project string) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(base, "webapp", "notes.txt"), []byte("x"), 0o644))
	time.Sleep(3 * debounce)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, fired)
}
