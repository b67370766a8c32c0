package rpc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/executor"
	"github.com/W1ndR1dr/flowforge/internal/git"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/remote"
	"github.com/W1ndR1dr/flowforge/internal/syncengine"
	"github.com/W1ndR1dr/flowforge/internal/testutil"
)

func newTestService(t *testing.T, projects ...string) (*Service, *testutil.StubRunner) {
	t.Helper()
	stub := testutil.NewStubRunner()
	git.SetDefaultRunner(stub)
	t.Cleanup(func() { git.SetDefaultRunner(nil) })

	base := t.TempDir()
	for _, name := range projects {
		require.NoError(t, os.MkdirAll(filepath.Join(base, name, registry.Dir), 0o755))
	}
	return NewService(base), stub
}

func TestListProjects_Local(t *testing.T) {
	svc, _ := newTestService(t, "webapp", "api")
	// a directory without the marker is not a project
	require.NoError(t, os.MkdirAll(filepath.Join(svc.ProjectsBase, "scratch"), 0o755))

	resp := svc.ListProjects(context.Background())
	require.True(t, resp.Success)

	projects := resp.Data.([]ProjectInfo)
	require.Len(t, projects, 2)
	names := []string{projects[0].Name, projects[1].Name}
	assert.ElementsMatch(t, []string{"webapp", "api"}, names)
	assert.Equal(t, "local", projects[0].Source)
}

type scriptedRunner struct {
	responses map[string]string // substring -> stdout
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	full := strings.Join(args, " ")
	for substr, out := range r.responses {
		if strings.Contains(full, substr) {
			return out, "", 0, nil
		}
	}
	return "", "not found", 1, nil
}

func TestListProjects_Workstation(t *testing.T) {
	svc, _ := newTestService(t)
	transport := remote.New("dev@mac.local")
	transport.SetRunner(&scriptedRunner{responses: map[string]string{
		"ls -1 /Users/dev/projects":                "webapp\napi\nscratch\n",
		"test -d /Users/dev/projects/webapp/.flow": "",
		"test -d /Users/dev/projects/api/.flow":    "",
		// scratch has no marker: the probe falls through to exit 1
	}})
	svc.Transport = transport
	svc.MacProjectsBase = "/Users/dev/projects"

	resp := svc.ListProjects(context.Background())
	require.True(t, resp.Success)
	projects := resp.Data.([]ProjectInfo)
	require.Len(t, projects, 2)
	assert.Equal(t, "api", projects[0].Name)
	assert.Equal(t, "webapp", projects[1].Name)
	assert.Equal(t, "workstation", projects[0].Source)
	assert.Equal(t, "/Users/dev/projects/api", projects[0].Path)
}

func TestAddListUpdateDeleteFeature(t *testing.T) {
	svc, _ := newTestService(t, "webapp")

	resp := svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{
		Description: "Toggle in settings",
		Priority:    2,
		Tags:        []string{"ui"},
	})
	require.True(t, resp.Success, resp.Message)
	f := resp.Data.(*registry.Feature)
	assert.Equal(t, "dark-mode", f.ID)

	resp = svc.ListFeatures(context.Background(), "webapp", "", "ui")
	require.True(t, resp.Success)
	assert.Len(t, resp.Data.([]*registry.Feature), 1)

	resp = svc.UpdateFeature(context.Background(), "webapp", "dark-mode", map[string]string{
		"status":   "review",
		"priority": "1",
	})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, registry.StatusReview, resp.Data.(*registry.Feature).Status)

	resp = svc.UpdateFeature(context.Background(), "webapp", "dark-mode", map[string]string{"color": "red"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "unknown field")

	resp = svc.DeleteFeature(context.Background(), "webapp", "dark-mode", false)
	require.True(t, resp.Success, resp.Message)

	resp = svc.ListFeatures(context.Background(), "webapp", "", "")
	require.True(t, resp.Success)
	assert.Empty(t, resp.Data)
}

func TestAddFeature_ValidationSurfaces(t *testing.T) {
	svc, _ := newTestService(t, "webapp")

	for _, title := range []string{"A", "B", "C"} {
		require.True(t, svc.AddFeature(context.Background(), "webapp", title, AddFeatureArgs{}).Success)
	}
	resp := svc.AddFeature(context.Background(), "webapp", "D", AddFeatureArgs{})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "planned")
}

func TestStartAndStopFeature(t *testing.T) {
	svc, stub := newTestService(t, "webapp")
	require.True(t, svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{
		Description: "Toggle in settings",
	}).Success)

	// feature branch does not exist yet
	stub.Stub("rev-parse --verify refs/heads/feature/dark-mode", "",
		testutil.FailWith("rev-parse", "unknown revision"))

	resp := svc.StartFeature(context.Background(), "webapp", "dark-mode")
	require.True(t, resp.Success, resp.Message)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "feature/dark-mode", data["branch"])
	promptPath := data["prompt_path"].(string)
	prompt, err := os.ReadFile(promptPath)
	require.NoError(t, err)
	assert.Contains(t, string(prompt), "Toggle in settings")

	// the registry on disk reflects the transition
	reg, err := registry.Open(svc.projectPath("webapp"))
	require.NoError(t, err)
	f, err := reg.Get("dark-mode")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusInProgress, f.Status)
	assert.Equal(t, "feature/dark-mode", f.Branch)
	assert.NotEmpty(t, f.WorkspacePath)

	resp = svc.StartFeature(context.Background(), "webapp", "dark-mode")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "already in progress")

	resp = svc.StopFeature(context.Background(), "webapp", "dark-mode")
	require.True(t, resp.Success, resp.Message)
	reg, err = registry.Open(svc.projectPath("webapp"))
	require.NoError(t, err)
	f, err = reg.Get("dark-mode")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusReview, f.Status, "a stopped feature lands in review")
	assert.Equal(t, "feature/dark-mode", f.Branch, "branch survives a stop")
	assert.NotEmpty(t, f.WorkspacePath, "workspace survives a stop")
}

func TestStopFeature_NotRunning(t *testing.T) {
	svc, _ := newTestService(t, "webapp")
	require.True(t, svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{}).Success)

	resp := svc.StopFeature(context.Background(), "webapp", "dark-mode")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "not running")
}

func TestMergeCheck_AllCandidates(t *testing.T) {
	svc, _ := newTestService(t, "webapp")
	require.True(t, svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{}).Success)
	require.True(t, svc.UpdateFeature(context.Background(), "webapp", "dark-mode",
		map[string]string{"status": "review"}).Success)

	resp := svc.MergeCheck(context.Background(), "webapp", "")
	require.True(t, resp.Success, resp.Message)
	data := resp.Data.(map[string]any)
	assert.Equal(t, []string{"dark-mode"}, data["order"])
}

func TestStatus(t *testing.T) {
	svc, _ := newTestService(t, "webapp")
	require.True(t, svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{}).Success)

	resp := svc.Status(context.Background(), "webapp")
	require.True(t, resp.Success, resp.Message)
	data := resp.Data.(map[string]any)
	stats := data["stats"].(registry.Stats)
	assert.Equal(t, 1, stats.Total)
}

func TestCacheInvalidation_SeesExternalEdits(t *testing.T) {
	svc, _ := newTestService(t, "webapp")
	require.True(t, svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{}).Success)

	// an external writer replaces the registry; the mutation-side
	// invalidation means the next load re-reads it
	root := svc.projectPath("webapp")
	reg, err := registry.Open(root)
	require.NoError(t, err)
	_, err = reg.Add("Sneaky external feature", registry.AddOptions{})
	require.NoError(t, err)

	resp := svc.ListFeatures(context.Background(), "webapp", "", "")
	require.True(t, resp.Success)
	assert.Len(t, resp.Data.([]*registry.Feature), 2)
}

func TestSpecText_TranslatesWorkstationPaths(t *testing.T) {
	svc, _ := newTestService(t, "webapp")
	svc.MacProjectsBase = "/Users/dev/projects"

	root := svc.projectPath("webapp")
	specDir := filepath.Join(root, "specs")
	require.NoError(t, os.MkdirAll(specDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(specDir, "dark-mode.md"), []byte("# Dark mode spec"), 0o644))

	// absolute workstation path, as a synced registry would record it
	f := &registry.Feature{
		ID:          "dark-mode",
		SpecPath:    "/Users/dev/projects/webapp/specs/dark-mode.md",
		Description: "fallback",
	}
	assert.Equal(t, "# Dark mode spec", svc.specText(root, f))

	// project-relative paths resolve against the project root
	f.SpecPath = "specs/dark-mode.md"
	assert.Equal(t, "# Dark mode spec", svc.specText(root, f))

	// unreadable spec falls back to the description
	f.SpecPath = "/Users/dev/projects/webapp/specs/missing.md"
	assert.Equal(t, "fallback", svc.specText(root, f))
}

func TestMutations_QueuedWhileWorkstationUnreachable(t *testing.T) {
	svc, _ := newTestService(t, "webapp")
	db, err := cache.Open(filepath.Join(t.TempDir(), "flowforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	offline := true
	svc.Cache = db
	svc.Offline = func() bool { return offline }

	resp := svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{
		Description: "Toggle in settings",
		Tags:        []string{"ui"},
	})
	require.True(t, resp.Success, resp.Message)
	assert.Contains(t, resp.Message, "queued")

	resp = svc.UpdateFeature(context.Background(), "webapp", "dark-mode", map[string]string{"status": "review"})
	require.True(t, resp.Success, resp.Message)
	resp = svc.DeleteFeature(context.Background(), "webapp", "old-one", true)
	require.True(t, resp.Success, resp.Message)

	// the local registry saw none of it
	list := svc.ListFeatures(context.Background(), "webapp", "", "")
	require.True(t, list.Success)
	assert.Empty(t, list.Data)

	ops, err := db.GetPending("webapp")
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, cache.OpAddFeature, ops[0].Operation)
	assert.Equal(t, cache.OpUpdateFeature, ops[1].Operation)
	assert.Equal(t, cache.OpDeleteFeature, ops[2].Operation)

	var add syncengine.AddFeaturePayload
	require.NoError(t, ops[0].Payload(&add))
	assert.Equal(t, "Dark mode", add.Title)
	assert.Equal(t, []string{"ui"}, add.Tags)

	var upd syncengine.UpdateFeaturePayload
	require.NoError(t, ops[1].Payload(&upd))
	assert.Equal(t, "dark-mode", upd.ID)
	assert.Equal(t, "review", upd.Fields["status"])

	// back in scope: mutations hit the registry directly again
	offline = false
	resp = svc.AddFeature(context.Background(), "webapp", "Live preview", AddFeatureArgs{})
	require.True(t, resp.Success, resp.Message)
	ops, err = db.GetPending("webapp")
	require.NoError(t, err)
	assert.Len(t, ops, 3, "an in-scope mutation is not queued")
}

type idleProc struct{ out io.Reader }

func (p *idleProc) Output() io.Reader { return p.out }
func (p *idleProc) Wait() error       { return nil }
func (p *idleProc) Kill() error       { return nil }

func TestStartFeature_DispatchesToWorkstation(t *testing.T) {
	svc, _ := newTestService(t, "webapp")
	svc.MacProjectsBase = "/Users/dev/projects"

	transport := remote.New("dev@mac.local")
	transport.SetRunner(&scriptedRunner{responses: map[string]string{
		// remote worktree already exists
		"test -d": "",
	}})
	svc.Transport = transport

	type spawnInfo struct {
		project executor.Project
		workDir string
	}
	spawned := make(chan spawnInfo, 1)
	ex := executor.New()
	ex.SetSpawnFunc(func(ctx context.Context, p executor.Project, workDir, prompt string) (executor.Process, error) {
		spawned <- spawnInfo{project: p, workDir: workDir}
		return &idleProc{out: strings.NewReader(executor.Sentinel + "\n")}, nil
	})
	svc.Executor = ex

	require.True(t, svc.AddFeature(context.Background(), "webapp", "Dark mode", AddFeatureArgs{
		Description: "Toggle in settings",
	}).Success)

	resp := svc.StartFeature(context.Background(), "webapp", "dark-mode")
	require.True(t, resp.Success, resp.Message)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "/Users/dev/projects/webapp/.flowforge-worktrees/dark-mode", data["workspace_path"])

	select {
	case info := <-spawned:
		assert.NotNil(t, info.project.Transport, "execution must carry the workstation transport")
		assert.Equal(t, "/Users/dev/projects/webapp", info.project.RemoteRoot)
		assert.Equal(t, "/Users/dev/projects/webapp/.flowforge-worktrees/dark-mode", info.workDir)
	case <-time.After(5 * time.Second):
		t.Fatal("execution was never dispatched")
	}
}
