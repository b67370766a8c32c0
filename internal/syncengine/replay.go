package syncengine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/remote"
)

// AddFeaturePayload is queued by add_feature while offline.
type AddFeaturePayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	Complexity  string   `json:"complexity,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// UpdateFeaturePayload is queued by update_feature while offline. Fields
// maps flag names (title, description, status, priority, complexity,
// tags) to their new values.
type UpdateFeaturePayload struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// DeleteFeaturePayload is queued by delete_feature while offline.
type DeleteFeaturePayload struct {
	ID string `json:"id"`
}

// Replayer applies one queued operation against the workstation.
type Replayer interface {
	Replay(ctx context.Context, projectPath string, op *cache.PendingOperation) error
}

// CLIReplayer replays operations by running the flowforge CLI on the
// workstation inside the project directory.
type CLIReplayer struct {
	Transport *remote.Transport

	// Command is the CLI binary on the workstation (default "flowforge")
	Command string
}

func (r *CLIReplayer) command() string {
	if r.Command == "" {
		return "flowforge"
	}
	return r.Command
}

// Replay translates the operation into a CLI invocation and runs it.
func (r *CLIReplayer) Replay(ctx context.Context, projectPath string, op *cache.PendingOperation) error {
	argv, err := r.argv(op)
	if err != nil {
		return err
	}
	res := r.Transport.Run(ctx, argv, remote.RunOptions{Cwd: projectPath})
	if !res.Ok() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return fmt.Errorf("replay %s (return code %d): %s", op.Operation, res.ReturnCode, msg)
	}
	return nil
}

func (r *CLIReplayer) argv(op *cache.PendingOperation) ([]string, error) {
	switch op.Operation {
	case cache.OpAddFeature:
		var p AddFeaturePayload
		if err := op.Payload(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", op.Operation, err)
		}
		argv := []string{r.command(), "feature", "add", p.Title}
		if p.Description != "" {
			argv = append(argv, "--description", p.Description)
		}
		if p.Priority != 0 {
			argv = append(argv, "--priority", strconv.Itoa(p.Priority))
		}
		if p.Complexity != "" {
			argv = append(argv, "--complexity", p.Complexity)
		}
		if len(p.DependsOn) > 0 {
			argv = append(argv, "--depends-on", strings.Join(p.DependsOn, ","))
		}
		if len(p.Tags) > 0 {
			argv = append(argv, "--tags", strings.Join(p.Tags, ","))
		}
		return argv, nil

	case cache.OpUpdateFeature:
		var p UpdateFeaturePayload
		if err := op.Payload(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", op.Operation, err)
		}
		argv := []string{r.command(), "feature", "update", p.ID}
		keys := make([]string, 0, len(p.Fields))
		for k := range p.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			argv = append(argv, "--"+k, p.Fields[k])
		}
		return argv, nil

	case cache.OpDeleteFeature:
		var p DeleteFeaturePayload
		if err := op.Payload(&p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", op.Operation, err)
		}
		return []string{r.command(), "feature", "delete", p.ID, "--force"}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", op.Operation)
}
