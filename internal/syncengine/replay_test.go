package syncengine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/remote"
)

func pendingOp(t *testing.T, operation string, payload any) *cache.PendingOperation {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &cache.PendingOperation{ID: 1, Operation: operation, PayloadJSON: string(data)}
}

func TestCLIReplayer_Argv(t *testing.T) {
	r := &CLIReplayer{}

	tests := []struct {
		name string
		op   *cache.PendingOperation
		want []string
	}{
		{
			"add with options",
			pendingOp(t, cache.OpAddFeature, AddFeaturePayload{
				Title:       "Dark mode",
				Description: "Toggle in settings",
				Priority:    2,
				DependsOn:   []string{"theme-engine"},
				Tags:        []string{"ui", "settings"},
			}),
			[]string{"flowforge", "feature", "add", "Dark mode",
				"--description", "Toggle in settings", "--priority", "2",
				"--depends-on", "theme-engine", "--tags", "ui,settings"},
		},
		{
			"bare add",
			pendingOp(t, cache.OpAddFeature, AddFeaturePayload{Title: "Auth"}),
			[]string{"flowforge", "feature", "add", "Auth"},
		},
		{
			"update with sorted fields",
			pendingOp(t, cache.OpUpdateFeature, UpdateFeaturePayload{
				ID:     "auth",
				Fields: map[string]string{"status": "review", "description": "OAuth"},
			}),
			[]string{"flowforge", "feature", "update", "auth",
				"--description", "OAuth", "--status", "review"},
		},
		{
			"delete is always forced",
			pendingOp(t, cache.OpDeleteFeature, DeleteFeaturePayload{ID: "old"}),
			[]string{"flowforge", "feature", "delete", "old", "--force"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv, err := r.argv(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, argv)
		})
	}

	_, err := r.argv(&cache.PendingOperation{Operation: "reboot", PayloadJSON: "{}"})
	assert.ErrorContains(t, err, "unknown operation")
}

type recordingRunner struct {
	lastArgs []string
	stderr   string
	exitCode int
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	r.lastArgs = append([]string{name}, args...)
	return "", r.stderr, r.exitCode, nil
}

func TestCLIReplayer_RunsInProjectDir(t *testing.T) {
	runner := &recordingRunner{}
	transport := remote.New("dev@mac.local")
	transport.SetRunner(runner)
	r := &CLIReplayer{Transport: transport}

	op := pendingOp(t, cache.OpDeleteFeature, DeleteFeaturePayload{ID: "old"})
	require.NoError(t, r.Replay(context.Background(), "/Users/dev/projects/webapp", op))

	full := runner.lastArgs[len(runner.lastArgs)-1]
	assert.Contains(t, full, "cd /Users/dev/projects/webapp")
	assert.Contains(t, full, "flowforge feature delete old --force")
}

func TestCLIReplayer_FailureCarriesStderr(t *testing.T) {
	runner := &recordingRunner{stderr: "feature not found: old", exitCode: 1}
	transport := remote.New("dev@mac.local")
	transport.SetRunner(runner)
	r := &CLIReplayer{Transport: transport}

	op := pendingOp(t, cache.OpDeleteFeature, DeleteFeaturePayload{ID: "old"})
	err := r.Replay(context.Background(), "/Users/dev/projects/webapp", op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature not found")
}
