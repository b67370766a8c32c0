// Package executor runs assistant processes against feature workspaces,
// up to a configurable number in parallel with FIFO admission for the
// overflow.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/remote"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// DefaultMaxParallel caps concurrently running assistant processes.
const DefaultMaxParallel = 5

// Sentinel is the completion token the assistant prints when an
// implementation is finished. Required for a successful outcome.
const Sentinel = "IMPLEMENTATION_COMPLETE"

// State is a per-execution lifecycle phase.
type State string

const (
	StatePending           State = "pending"
	StateCreatingWorkspace State = "creating_workspace"
	StateRunning           State = "running"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
)

// Progress is one record in an execution's progress stream. While
// running, one record is emitted per line of the child's combined
// output; every state transition emits exactly one record.
type Progress struct {
	ExecutionID string    `json:"execution_id"`
	FeatureID   string    `json:"feature_id"`
	State       State     `json:"state"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Project identifies where an execution runs. A nil Transport means the
// project is local; otherwise the child is spawned on the workstation
// with RemoteRoot as the project path there.
type Project struct {
	Name       string
	Root       string
	Config     *config.Config
	Transport  *remote.Transport
	RemoteRoot string
}

// Request asks for one feature implementation run.
type Request struct {
	FeatureID string
	Spec      string
	Project   Project
}

type execution struct {
	id     string
	req    Request
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	proc Process
}

// Executor owns the active-execution set and the pending queue. Both are
// guarded by one mutex held only across bookkeeping, never across I/O.
type Executor struct {
	MaxParallel int

	spawn SpawnFunc
	newID func() string

	mu      sync.Mutex
	active  map[string]*execution
	pending []Request
}

// New creates an executor with the default parallelism cap.
func New() *Executor {
	return &Executor{
		MaxParallel: DefaultMaxParallel,
		spawn:       spawnProcess,
		newID:       func() string { return ulid.Make().String() },
		active:      make(map[string]*execution),
	}
}

// SetSpawnFunc replaces the child spawner. Intended for tests.
func (e *Executor) SetSpawnFunc(fn SpawnFunc) {
	e.spawn = fn
}

// ActiveCount returns the number of running executions.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// QueuedCount returns the number of requests waiting for a slot.
func (e *Executor) QueuedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// ExecuteFeature starts (or queues) a feature run and returns its
// progress stream. When no slot is free the stream yields exactly one
// pending record and is closed; the queued request runs when a slot
// frees, with its output discarded.
func (e *Executor) ExecuteFeature(ctx context.Context, req Request) <-chan Progress {
	ch := make(chan Progress, 16)

	e.mu.Lock()
	if _, running := e.active[req.FeatureID]; running {
		e.mu.Unlock()
		ch <- Progress{
			FeatureID: req.FeatureID,
			State:     StateFailed,
			Message:   fmt.Sprintf("feature %s is already executing", req.FeatureID),
			Timestamp: time.Now().UTC(),
		}
		close(ch)
		return ch
	}
	if len(e.active) >= e.maxParallel() {
		e.pending = append(e.pending, req)
		waiting := len(e.active)
		e.mu.Unlock()
		ch <- Progress{
			FeatureID: req.FeatureID,
			State:     StatePending,
			Message:   fmt.Sprintf("queued: %d executions already running", waiting),
			Timestamp: time.Now().UTC(),
		}
		close(ch)
		return ch
	}

	ex := e.admitLocked(ctx, req)
	e.mu.Unlock()

	go e.run(ex, ch)
	return ch
}

// Cancel kills a running execution or drops a queued request. It reports
// whether anything was cancelled.
func (e *Executor) Cancel(featureID string) bool {
	e.mu.Lock()
	if ex, ok := e.active[featureID]; ok {
		e.mu.Unlock()
		ex.cancel()
		ex.mu.Lock()
		if ex.proc != nil {
			_ = ex.proc.Kill()
		}
		ex.mu.Unlock()
		return true
	}
	for i, req := range e.pending {
		if req.FeatureID == featureID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			e.mu.Unlock()
			return true
		}
	}
	e.mu.Unlock()
	return false
}

func (e *Executor) maxParallel() int {
	if e.MaxParallel <= 0 {
		return DefaultMaxParallel
	}
	return e.MaxParallel
}

// admitLocked registers an active execution. Caller holds e.mu.
func (e *Executor) admitLocked(ctx context.Context, req Request) *execution {
	runCtx, cancel := context.WithCancel(ctx)
	ex := &execution{id: e.newID(), req: req, ctx: runCtx, cancel: cancel}
	e.active[req.FeatureID] = ex
	return ex
}

// release frees the execution's slot and drains one queued request, if
// any, running it with a discarded stream.
func (e *Executor) release(ex *execution) {
	e.mu.Lock()
	delete(e.active, ex.req.FeatureID)
	if len(e.pending) == 0 || len(e.active) >= e.maxParallel() {
		e.mu.Unlock()
		return
	}
	next := e.pending[0]
	e.pending = e.pending[1:]
	nextEx := e.admitLocked(context.Background(), next)
	e.mu.Unlock()

	go e.run(nextEx, nil)
}

// emit sends a record unless the stream is nil (drained queue runs).
func emit(ch chan<- Progress, p Progress) {
	if ch != nil {
		p.Timestamp = time.Now().UTC()
		ch <- p
	}
}

func (e *Executor) run(ex *execution, ch chan Progress) {
	defer func() {
		if ch != nil {
			close(ch)
		}
		e.release(ex)
	}()

	req := ex.req
	record := func(state State, message string) {
		emit(ch, Progress{
			ExecutionID: ex.id,
			FeatureID:   req.FeatureID,
			State:       state,
			Message:     message,
		})
	}

	record(StateCreatingWorkspace, "preparing workspace "+req.FeatureID)
	workDir, err := e.createWorkspace(ex.ctx, req)
	if err != nil {
		record(StateFailed, fmt.Sprintf("workspace creation failed: %v", err))
		return
	}

	prompt := BuildPrompt(req.Project.Name, req.FeatureID, req.Spec, req.Project.Config.Project.DefaultPersona)

	record(StateRunning, "assistant started in "+workDir)
	proc, err := e.spawn(ex.ctx, req.Project, workDir, prompt)
	if err != nil {
		record(StateFailed, fmt.Sprintf("spawn failed: %v", err))
		return
	}
	ex.mu.Lock()
	ex.proc = proc
	ex.mu.Unlock()

	var output strings.Builder
	sawSentinel := false
	scanner := bufio.NewScanner(proc.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		output.WriteString(line)
		output.WriteByte('\n')
		record(StateRunning, line)
		if strings.Contains(line, Sentinel) {
			sawSentinel = true
			break
		}
	}
	if sawSentinel {
		// Keep draining so the child never blocks on a full pipe; the
		// tail still counts toward completion parsing.
		for scanner.Scan() {
			output.WriteString(scanner.Text())
			output.WriteByte('\n')
		}
	}

	waitErr := proc.Wait()
	outcome := ParseCompletion(output.String(), waitErr)
	if outcome.Success {
		msg := "implementation complete"
		if outcome.Summary != "" {
			msg = outcome.Summary
		}
		if len(outcome.FilesChanged) > 0 {
			msg += fmt.Sprintf(" (%d files changed)", len(outcome.FilesChanged))
		}
		record(StateCompleted, msg)
		return
	}
	record(StateFailed, outcome.FailureReason)
}

// createWorkspace ensures the feature worktree exists, locally or on the
// workstation, and returns the directory the child runs in.
func (e *Executor) createWorkspace(ctx context.Context, req Request) (string, error) {
	cfg := req.Project.Config
	if req.Project.Transport != nil {
		dir := path.Join(req.Project.RemoteRoot, cfg.Project.WorktreeBase, req.FeatureID)
		if req.Project.Transport.Exists(ctx, dir, remote.KindDir) {
			return dir, nil
		}
		g := remote.NewGit(req.Project.Transport, req.Project.RemoteRoot)
		branch := "feature/" + req.FeatureID
		if res := g.AddWorktree(ctx, dir, branch, cfg.Project.MainBranch); !res.Ok() {
			return "", fmt.Errorf("remote worktree add: %s", strings.TrimSpace(res.Stderr))
		}
		return dir, nil
	}

	m := workspace.NewManager(req.Project.Root, cfg.Project.WorktreeBase, cfg.Project.MainBranch)
	dir := m.Path(req.FeatureID)
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	if _, err := m.Create(ctx, req.FeatureID, ""); err != nil {
		return "", err
	}
	return dir, nil
}
