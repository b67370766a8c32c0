package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W1ndR1dr/flowforge/internal/git"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/testutil"
)

// run executes the command tree against a fresh App, capturing output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := New()
	var buf bytes.Buffer
	root := app.Root()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// initProject chdirs into a fresh project directory.
func initProject(t *testing.T, name string) {
	t.Helper()
	t.Chdir(t.TempDir())
	out, err := run(t, "init", name)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized flowforge project "+name)
}

func TestInit_RefusesReinit(t *testing.T) {
	initProject(t, "webapp")
	_, err := run(t, "init", "webapp")
	require.ErrorContains(t, err, "already initialized")
}

func TestFeatureLifecycle(t *testing.T) {
	initProject(t, "webapp")

	out, err := run(t, "feature", "add", "Dark mode",
		"--description", "Add a dark theme",
		"--priority", "2",
		"--complexity", "small",
		"--tags", "ui,theme")
	require.NoError(t, err)
	assert.Contains(t, out, "dark-mode")

	out, err = run(t, "feature", "list", "--output", "json")
	require.NoError(t, err)
	var features []*registry.Feature
	require.NoError(t, json.Unmarshal([]byte(out), &features))
	require.Len(t, features, 1)
	assert.Equal(t, "dark-mode", features[0].ID)
	assert.Equal(t, 2, features[0].Priority)
	assert.Equal(t, []string{"ui", "theme"}, features[0].Tags)

	out, err = run(t, "feature", "update", "dark-mode", "--status", "review", "--priority", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated feature")

	out, err = run(t, "feature", "list", "--status", "review", "--output", "json")
	require.NoError(t, err)
	features = nil
	require.NoError(t, json.Unmarshal([]byte(out), &features))
	require.Len(t, features, 1)
	assert.Equal(t, 1, features[0].Priority)

	_, err = run(t, "feature", "delete", "dark-mode")
	require.NoError(t, err)

	out, err = run(t, "feature", "list", "--output", "json")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestFeatureAdd_PlannedCapListsTitles(t *testing.T) {
	initProject(t, "webapp")

	for _, title := range []string{"One", "Two", "Three"} {
		_, err := run(t, "feature", "add", title)
		require.NoError(t, err)
	}

	out, err := run(t, "feature", "add", "Four")
	require.Error(t, err)
	assert.Contains(t, out, "Currently planned:")
	assert.Contains(t, out, "One")
}

func TestFeatureList_Table(t *testing.T) {
	initProject(t, "webapp")
	_, err := run(t, "feature", "add", "Dark mode")
	require.NoError(t, err)

	out, err := run(t, "feature", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "dark-mode")
	assert.Contains(t, out, "planned")
}

func TestFeatureUpdate_NoFields(t *testing.T) {
	initProject(t, "webapp")
	_, err := run(t, "feature", "add", "Dark mode")
	require.NoError(t, err)

	_, err = run(t, "feature", "update", "dark-mode")
	require.ErrorContains(t, err, "no fields to update")
}

func TestFeatureStop_RequiresInProgress(t *testing.T) {
	initProject(t, "webapp")
	_, err := run(t, "feature", "add", "Dark mode")
	require.NoError(t, err)

	_, err = run(t, "feature", "stop", "dark-mode")
	require.ErrorContains(t, err, "not in progress")

	_, err = run(t, "feature", "update", "dark-mode", "--status", "in-progress")
	require.NoError(t, err)
	out, err := run(t, "feature", "stop", "dark-mode")
	require.NoError(t, err)
	assert.Contains(t, out, "Stopped feature dark-mode")

	out, err = run(t, "feature", "list", "--output", "json")
	require.NoError(t, err)
	var features []*registry.Feature
	require.NoError(t, json.Unmarshal([]byte(out), &features))
	require.Len(t, features, 1)
	assert.Equal(t, registry.StatusReview, features[0].Status, "a stopped feature lands in review")
}

func TestCommandsOutsideProject(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := run(t, "feature", "list")
	require.ErrorContains(t, err, "not inside a flowforge project")
}

func TestMerge_RequiresIDOrAll(t *testing.T) {
	initProject(t, "webapp")
	_, err := run(t, "merge")
	require.ErrorContains(t, err, "feature id or --all")
	_, err = run(t, "merge", "dark-mode", "--all")
	require.ErrorContains(t, err, "feature id or --all")
}

func TestMergeCheck_Clean(t *testing.T) {
	stub := testutil.NewStubRunner()
	git.SetDefaultRunner(stub)
	t.Cleanup(func() { git.SetDefaultRunner(nil) })

	initProject(t, "webapp")
	_, err := run(t, "feature", "add", "Dark mode")
	require.NoError(t, err)
	_, err = run(t, "feature", "update", "dark-mode", "--status", "review")
	require.NoError(t, err)

	out, err := run(t, "merge-check", "--output", "json")
	require.NoError(t, err)
	var rows []mergeCheckRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "dark-mode", rows[0].FeatureID)
	assert.True(t, rows[0].Clean)
}

func TestStatus_JSON(t *testing.T) {
	stub := testutil.NewStubRunner()
	git.SetDefaultRunner(stub)
	t.Cleanup(func() { git.SetDefaultRunner(nil) })

	initProject(t, "webapp")
	_, err := run(t, "feature", "add", "Dark mode")
	require.NoError(t, err)

	out, err := run(t, "status", "--output", "json")
	require.NoError(t, err)
	var st projectStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "webapp", st.Project)
	assert.Equal(t, 1, st.Stats.Total)
	assert.Equal(t, "main", st.MainBranch)
}

func TestVersionCmd(t *testing.T) {
	app := New()
	app.SetVersion("1.2.3", "abc123", "2026-01-01")
	var buf bytes.Buffer
	root := app.Root()
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "flowforge version 1.2.3")
	assert.Contains(t, buf.String(), "commit: abc123")
}

func TestSync_RequiresHost(t *testing.T) {
	t.Setenv("FORGE_MAC_HOST", "")
	_, err := run(t, "sync")
	require.ErrorContains(t, err, "no workstation host")
}
