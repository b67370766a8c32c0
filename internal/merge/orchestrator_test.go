package merge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W1ndR1dr/flowforge/internal/git"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/testutil"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

func setup(t *testing.T) (*Orchestrator, *registry.Registry, *testutil.StubRunner) {
	t.Helper()
	stub := testutil.NewStubRunner()
	git.SetDefaultRunner(stub)
	t.Cleanup(func() { git.SetDefaultRunner(nil) })

	reg := registry.NewInMemory(registry.WithMaxPlanned(100))
	root := t.TempDir()
	ws := workspace.NewManager(root, ".flowforge-worktrees", "main")
	o := New(reg, ws, root, "main", "")
	return o, reg, stub
}

func addReview(t *testing.T, reg *registry.Registry, title string, priority int, deps ...string) string {
	t.Helper()
	f, err := reg.Add(title, registry.AddOptions{Priority: priority, DependsOn: deps})
	require.NoError(t, err)
	st := registry.StatusReview
	branch := registry.BranchName(f.ID)
	_, err = reg.Update(f.ID, registry.Patch{Status: &st, Branch: &branch})
	require.NoError(t, err)
	return f.ID
}

func TestComputeMergeOrder_Dependencies(t *testing.T) {
	o, reg, _ := setup(t)
	x := addReview(t, reg, "X", 0)
	y := addReview(t, reg, "Y", 0, x)
	z := addReview(t, reg, "Z", 0)

	assert.Equal(t, []string{x, y, z}, o.ComputeMergeOrder())
}

func TestComputeMergeOrder_PriorityIsTieBreakOnly(t *testing.T) {
	o, reg, _ := setup(t)
	x := addReview(t, reg, "X", 1)
	y := addReview(t, reg, "Y", 1, x)
	z := addReview(t, reg, "Z", 0)

	// Z has the best priority, but Y still waits for X; ready-set
	// tie-break puts Z before X.
	assert.Equal(t, []string{z, x, y}, o.ComputeMergeOrder())
}

func TestComputeMergeOrder_DependencyBeatsPriority(t *testing.T) {
	o, reg, _ := setup(t)
	x := addReview(t, reg, "X", 0)
	y := addReview(t, reg, "Y", 5, x)
	// dependency edge forces X before Y regardless of priority values
	order := o.ComputeMergeOrder()
	assert.Equal(t, []string{x, y}, order)
}

func TestComputeMergeOrder_IgnoresNonReviewDeps(t *testing.T) {
	o, reg, _ := setup(t)
	base, err := reg.Add("base", registry.AddOptions{})
	require.NoError(t, err)
	y := addReview(t, reg, "Y", 0, base.ID)

	// base is planned, not review: the edge is outside the merge set
	assert.Equal(t, []string{y}, o.ComputeMergeOrder())
}

func TestCheckConflicts_CleanAndDirty(t *testing.T) {
	o, reg, stub := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	report, err := o.CheckConflicts(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.True(t, stub.CalledWith("merge --abort"), "probe must abort even when clean")

	stub.Stub("merge --no-commit --no-ff feature/dark-mode", "",
		testutil.FailWith("merge", "CONFLICT"))
	stub.Stub("diff --name-only --diff-filter=U", "src/app.js\n", nil)

	report, err = o.CheckConflicts(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Equal(t, []string{"src/app.js"}, report.ConflictFiles)
}

func TestMerge_HappyPath(t *testing.T) {
	o, reg, stub := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	res, err := o.Merge(context.Background(), id, false, false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, stub.CalledWith("merge --no-ff feature/dark-mode"))

	f, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusCompleted, f.Status)
	require.NotNil(t, f.CompletedAt)
}

func TestMerge_ConflictBlocks(t *testing.T) {
	o, reg, stub := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	stub.StubDefault("merge --no-commit --no-ff feature/dark-mode", "",
		testutil.FailWith("merge", "CONFLICT"))
	stub.StubDefault("diff --name-only --diff-filter=U", "src/app.js\n", nil)

	res, err := o.Merge(context.Background(), id, false, false)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ConflictFiles)
	assert.False(t, stub.CalledWith("merge --no-ff "), "real merge must not run on conflict")

	f, _ := reg.Get(id)
	assert.Equal(t, registry.StatusReview, f.Status)
}

func TestMerge_ValidationFailureRollsBack(t *testing.T) {
	o, reg, stub := setup(t)
	id := addReview(t, reg, "Dark mode", 0)
	o.BuildCommand = "make build"
	o.SetCommandFunc(func(ctx context.Context, dir, command string) (string, error) {
		assert.Equal(t, o.ProjectRoot, dir)
		assert.Equal(t, "make build", command)
		return "compile error: db.js:14", errors.New("exit status 2")
	})

	res, err := o.Merge(context.Background(), id, true, true)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.ValidationOutput, "compile error")
	assert.True(t, stub.CalledWith("reset --hard HEAD~1"))

	// feature stays in review; no cleanup ran
	f, _ := reg.Get(id)
	assert.Equal(t, registry.StatusReview, f.Status)
	assert.False(t, stub.CalledWith("worktree remove"))
}

func TestMerge_AutoCleanup(t *testing.T) {
	o, reg, stub := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	res, err := o.Merge(context.Background(), id, false, true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, stub.CalledWith("worktree remove"))
	assert.True(t, stub.CalledWith("branch -D feature/dark-mode"))

	f, _ := reg.Get(id)
	assert.Empty(t, f.Branch)
	assert.Empty(t, f.WorkspacePath)
}

func TestMerge_CleanupFailureIsWarning(t *testing.T) {
	o, reg, stub := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	stub.StubDefault("worktree remove "+o.Workspaces.Path(id)+" --force", "",
		testutil.FailWith("worktree remove", "locked"))

	res, err := o.Merge(context.Background(), id, false, true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.CleanupWarning)

	// completed despite the orphan worktree
	f, _ := reg.Get(id)
	assert.Equal(t, registry.StatusCompleted, f.Status)
	assert.Equal(t, registry.BranchName(id), f.Branch)
}

func TestMergeAllSafe_StopsAtFirstFailure(t *testing.T) {
	o, reg, stub := setup(t)
	x := addReview(t, reg, "X", 0)
	y := addReview(t, reg, "Y", 0, x)
	z := addReview(t, reg, "Z", 1)

	// X conflicts; Y and Z must never be attempted
	stub.StubDefault("merge --no-commit --no-ff feature/x", "",
		testutil.FailWith("merge", "CONFLICT"))

	results, err := o.MergeAllSafe(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, x, results[0].FeatureID)

	for _, id := range []string{y, z} {
		f, _ := reg.Get(id)
		assert.Equal(t, registry.StatusReview, f.Status, "feature %s must be untouched", id)
	}
}

func TestConflictPrompt(t *testing.T) {
	doc := ConflictPrompt("dark-mode", "feature/dark-mode", "main", []string{"a.js", "b.js"})
	assert.Contains(t, doc, "dark-mode")
	assert.Contains(t, doc, "- a.js")
	assert.Contains(t, doc, "- b.js")
	assert.Contains(t, doc, "git rebase main")

	// pure function: identical input, identical output
	assert.Equal(t, doc, ConflictPrompt("dark-mode", "feature/dark-mode", "main", []string{"a.js", "b.js"}))
	assert.True(t, strings.HasPrefix(doc, "# Merge conflict"))
}

func queueItem(t *testing.T, reg *registry.Registry, id string) *registry.MergeQueueItem {
	t.Helper()
	for i := range reg.Document().MergeQueue {
		item := &reg.Document().MergeQueue[i]
		if item.FeatureID == id {
			return item
		}
	}
	t.Fatalf("no merge queue item for %s", id)
	return nil
}

func TestMerge_QueueItemReachesMerged(t *testing.T) {
	o, reg, _ := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	res, err := o.Merge(context.Background(), id, false, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	item := queueItem(t, reg, id)
	assert.Equal(t, registry.MergeMerged, item.Status)
	assert.True(t, item.ValidationPassed)
	assert.Empty(t, item.ConflictFiles)
	assert.False(t, item.QueuedAt.IsZero())
}

func TestMerge_QueueItemRecordsConflict(t *testing.T) {
	o, reg, stub := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	stub.StubDefault("merge --no-commit --no-ff feature/dark-mode", "",
		testutil.FailWith("merge", "CONFLICT"))
	stub.StubDefault("diff --name-only --diff-filter=U", "src/app.js\n", nil)

	_, err := o.Merge(context.Background(), id, false, false)
	require.NoError(t, err)

	item := queueItem(t, reg, id)
	assert.Equal(t, registry.MergeConflict, item.Status)
	assert.Equal(t, []string{"src/app.js"}, item.ConflictFiles)
	assert.False(t, item.ValidationPassed)
}

func TestMerge_QueueItemRequeuedOnValidationFailure(t *testing.T) {
	o, reg, _ := setup(t)
	id := addReview(t, reg, "Dark mode", 0)
	o.BuildCommand = "make build"
	o.SetCommandFunc(func(ctx context.Context, dir, command string) (string, error) {
		return "compile error", errors.New("exit status 2")
	})

	res, err := o.Merge(context.Background(), id, true, false)
	require.NoError(t, err)
	require.False(t, res.Success)

	item := queueItem(t, reg, id)
	assert.Equal(t, registry.MergePending, item.Status)
	assert.False(t, item.ValidationPassed)
}

func TestCheckConflicts_QueueItemReady(t *testing.T) {
	o, reg, _ := setup(t)
	id := addReview(t, reg, "Dark mode", 0)

	report, err := o.CheckConflicts(context.Background(), id)
	require.NoError(t, err)
	require.True(t, report.Success)

	item := queueItem(t, reg, id)
	assert.Equal(t, registry.MergeReady, item.Status)
}
