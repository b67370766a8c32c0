// Package merge orders, validates, and lands feature branches on trunk.
// Merges are serialized: git requires exclusive access to the trunk
// checkout, so bulk operations run one feature at a time.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"sort"
	"time"

	"github.com/W1ndR1dr/flowforge/internal/git"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// CommandFunc runs a shell-interpreted validation command in dir and
// returns its combined output. Swappable for tests.
type CommandFunc func(ctx context.Context, dir, command string) (string, error)

func runShellCommand(ctx context.Context, dir, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// Orchestrator lands review features on trunk.
type Orchestrator struct {
	Registry    *registry.Registry
	Workspaces  *workspace.Manager
	ProjectRoot string
	Trunk       string

	// BuildCommand validates the tree after a merge; empty disables
	// validation even when requested.
	BuildCommand string

	runCommand CommandFunc
	now        func() time.Time
}

// New creates a merge orchestrator.
func New(reg *registry.Registry, ws *workspace.Manager, projectRoot, trunk, buildCommand string) *Orchestrator {
	if trunk == "" {
		trunk = "main"
	}
	return &Orchestrator{
		Registry:     reg,
		Workspaces:   ws,
		ProjectRoot:  projectRoot,
		Trunk:        trunk,
		BuildCommand: buildCommand,
		runCommand:   runShellCommand,
		now:          time.Now,
	}
}

// SetCommandFunc replaces the validation command runner. Intended for tests.
func (o *Orchestrator) SetCommandFunc(fn CommandFunc) {
	o.runCommand = fn
}

// ConflictReport is the outcome of a dry-run conflict probe.
type ConflictReport struct {
	Success       bool     `json:"success"`
	ConflictFiles []string `json:"conflict_files,omitempty"`
}

// CheckConflicts probes whether a feature branch merges cleanly into
// trunk. The probe is side-effect-free: the attempted merge is always
// aborted.
func (o *Orchestrator) CheckConflicts(ctx context.Context, featureID string) (*ConflictReport, error) {
	f, err := o.Registry.Get(featureID)
	if err != nil {
		return nil, err
	}
	branch := f.Branch
	if branch == "" {
		branch = registry.BranchName(featureID)
	}

	client := git.NewClient(o.ProjectRoot)
	if err := client.Checkout(ctx, o.Trunk); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", o.Trunk, err)
	}
	client.Pull(ctx)

	conflicts, err := client.MergeProbe(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("merge probe: %w", err)
	}

	o.trackMerge(featureID, func(item *registry.MergeQueueItem) {
		item.ConflictFiles = conflicts
		if len(conflicts) == 0 {
			item.Status = registry.MergeReady
		} else {
			item.Status = registry.MergeConflict
		}
	})
	return &ConflictReport{Success: len(conflicts) == 0, ConflictFiles: conflicts}, nil
}

// trackMerge records a feature's merge-queue transition, enqueueing the
// feature on its first appearance. Queue bookkeeping never blocks the
// merge itself.
func (o *Orchestrator) trackMerge(featureID string, fn func(*registry.MergeQueueItem)) {
	if err := o.Registry.UpdateMergeItem(featureID, fn); err == nil {
		return
	}
	if err := o.Registry.EnqueueMerge(featureID); err != nil {
		log.Printf("warning: enqueue merge of %s: %v", featureID, err)
		return
	}
	if err := o.Registry.UpdateMergeItem(featureID, fn); err != nil {
		log.Printf("warning: track merge of %s: %v", featureID, err)
	}
}

// ComputeMergeOrder topologically sorts review features by their
// dependencies (restricted to the review set), breaking ties among ready
// nodes by ascending priority. When a cycle exists — which implies a
// corrupt registry — the ordering stops at the first unresolvable node
// and the valid prefix is returned.
func (o *Orchestrator) ComputeMergeOrder() []string {
	candidates := o.Registry.GetMergeCandidates()
	inSet := make(map[string]*registry.Feature, len(candidates))
	for _, f := range candidates {
		inSet[f.ID] = f
	}

	// in-degree counts only dependencies inside the review set
	inDegree := make(map[string]int, len(inSet))
	dependents := make(map[string][]string)
	for id, f := range inSet {
		inDegree[id] = 0
		for _, dep := range f.DependsOn {
			if _, ok := inSet[dep]; ok {
				inDegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	var order []string
	for len(order) < len(inSet) {
		// Pick the ready node with the lowest priority value; id breaks
		// exact ties deterministically.
		var ready []string
		for id, deg := range inDegree {
			if deg == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// cycle: return the prefix computed so far
			break
		}
		sort.Slice(ready, func(i, j int) bool {
			a, b := inSet[ready[i]], inSet[ready[j]]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return a.ID < b.ID
		})
		next := ready[0]
		order = append(order, next)
		delete(inDegree, next)
		for _, dep := range dependents[next] {
			if _, ok := inDegree[dep]; ok {
				inDegree[dep]--
			}
		}
	}
	return order
}

// Result is the outcome of a merge attempt.
type Result struct {
	Success          bool     `json:"success"`
	FeatureID        string   `json:"feature_id"`
	Message          string   `json:"message"`
	ConflictFiles    []string `json:"conflict_files,omitempty"`
	ValidationOutput string   `json:"validation_output,omitempty"`
	CleanupWarning   string   `json:"cleanup_warning,omitempty"`
}

// Merge lands one feature on trunk. Steps: conflict probe, checkout and
// pull trunk, non-fast-forward merge, optional build validation with a
// one-commit hard reset on failure, registry update to completed, and
// optional worktree/branch cleanup. Registry updates happen only after
// the git operations succeed.
func (o *Orchestrator) Merge(ctx context.Context, featureID string, validate, autoCleanup bool) (*Result, error) {
	f, err := o.Registry.Get(featureID)
	if err != nil {
		return nil, err
	}
	branch := f.Branch
	if branch == "" {
		branch = registry.BranchName(featureID)
	}

	report, err := o.CheckConflicts(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if !report.Success {
		return &Result{
			FeatureID:     featureID,
			Message:       fmt.Sprintf("merge of %s blocked by %d conflicting files", branch, len(report.ConflictFiles)),
			ConflictFiles: report.ConflictFiles,
		}, nil
	}

	o.trackMerge(featureID, func(item *registry.MergeQueueItem) {
		item.Status = registry.MergeValidating
	})

	client := git.NewClient(o.ProjectRoot)
	if err := client.Checkout(ctx, o.Trunk); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", o.Trunk, err)
	}
	client.Pull(ctx)

	message := fmt.Sprintf("Merge feature: %s\n\n%s (%s)", f.Title, f.Title, featureID)
	if err := client.MergeNoFF(ctx, branch, message); err != nil {
		return nil, fmt.Errorf("merge %s: %w", branch, err)
	}

	if validate && o.BuildCommand != "" {
		output, buildErr := o.runCommand(ctx, o.ProjectRoot, o.BuildCommand)
		if buildErr != nil {
			// Undo the merge commit so trunk is exactly where it was.
			if resetErr := client.ResetHard(ctx, 1); resetErr != nil {
				return nil, fmt.Errorf("validation failed and rollback failed: %v (build: %v)", resetErr, buildErr)
			}
			// back in line for another attempt after a fix
			o.trackMerge(featureID, func(item *registry.MergeQueueItem) {
				item.Status = registry.MergePending
				item.ValidationPassed = false
			})
			return &Result{
				FeatureID:        featureID,
				Message:          fmt.Sprintf("validation failed for %s; merge rolled back", featureID),
				ValidationOutput: output,
			}, nil
		}
	}

	completedAt := o.now().UTC()
	status := registry.StatusCompleted
	patch := registry.Patch{Status: &status, CompletedAt: &completedAt}
	if _, err := o.Registry.Update(featureID, patch); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	o.trackMerge(featureID, func(item *registry.MergeQueueItem) {
		item.Status = registry.MergeMerged
		item.ValidationPassed = true
	})

	result := &Result{
		Success:   true,
		FeatureID: featureID,
		Message:   fmt.Sprintf("merged %s into %s", branch, o.Trunk),
	}

	if autoCleanup {
		if err := o.Workspaces.Remove(ctx, featureID, true, true); err != nil {
			// The merge landed; an orphan worktree is an eventually
			// consistent warning, not a failure.
			log.Printf("warning: cleanup after merging %s failed: %v", featureID, err)
			result.CleanupWarning = err.Error()
		} else {
			empty := ""
			_, _ = o.Registry.Update(featureID, registry.Patch{Branch: &empty, WorkspacePath: &empty})
		}
	}
	return result, nil
}

// MergeAllSafe merges review features in dependency order, stopping at
// the first failure: later features may depend on the failed one.
func (o *Orchestrator) MergeAllSafe(ctx context.Context, validate bool) ([]*Result, error) {
	var results []*Result
	for _, id := range o.ComputeMergeOrder() {
		res, err := o.Merge(ctx, id, validate, true)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if !res.Success {
			break
		}
	}
	return results, nil
}

// SyncFeature rebases a feature branch onto trunk via its workspace.
func (o *Orchestrator) SyncFeature(ctx context.Context, featureID string) error {
	return o.Workspaces.SyncFromTrunk(ctx, featureID)
}
