// Package workspace manages isolated git worktrees for features. A
// workspace lives at <project>/<worktree_base>/<feature_id> with branch
// feature/<feature_id> checked out.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/W1ndR1dr/flowforge/internal/git"
	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// Manager creates and removes feature workspaces for one project.
type Manager struct {
	// ProjectRoot is the main repository checkout
	ProjectRoot string

	// WorktreeBase is the directory holding feature worktrees
	WorktreeBase string

	// Trunk is the shared integration branch
	Trunk string
}

// NewManager creates a workspace manager.
func NewManager(projectRoot, worktreeBase, trunk string) *Manager {
	if !filepath.IsAbs(worktreeBase) {
		worktreeBase = filepath.Join(projectRoot, worktreeBase)
	}
	if trunk == "" {
		trunk = "main"
	}
	return &Manager{
		ProjectRoot:  projectRoot,
		WorktreeBase: worktreeBase,
		Trunk:        trunk,
	}
}

// Workspace describes a created feature workspace.
type Workspace struct {
	FeatureID string
	Path      string
	Branch    string
}

// Path returns the workspace directory for a feature id.
func (m *Manager) Path(featureID string) string {
	return filepath.Join(m.WorktreeBase, featureID)
}

// Create makes the feature branch (from baseBranch, if it does not
// already exist) and a worktree for it. Fails when the target directory
// already exists.
func (m *Manager) Create(ctx context.Context, featureID, baseBranch string) (*Workspace, error) {
	if baseBranch == "" {
		baseBranch = m.Trunk
	}
	path := m.Path(featureID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("workspace already exists: %s", path)
	}

	branch := registry.BranchName(featureID)
	client := git.NewClient(m.ProjectRoot)
	if !client.BranchExists(ctx, branch) {
		if err := client.CreateBranch(ctx, branch, baseBranch); err != nil {
			return nil, fmt.Errorf("create branch %s: %w", branch, err)
		}
	}

	if err := git.AddWorktree(ctx, m.ProjectRoot, path, branch); err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	return &Workspace{FeatureID: featureID, Path: path, Branch: branch}, nil
}

// Remove deletes a feature workspace. It refuses when the branch has not
// been merged into trunk unless force is set; with force the worktree
// removal is forced as well. deleteBranch additionally removes the branch.
func (m *Manager) Remove(ctx context.Context, featureID string, force, deleteBranch bool) error {
	branch := registry.BranchName(featureID)
	client := git.NewClient(m.ProjectRoot)

	if !force {
		merged, err := client.MergedInto(ctx, m.Trunk)
		if err != nil {
			return fmt.Errorf("check merged branches: %w", err)
		}
		found := false
		for _, b := range merged {
			if b == branch {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("branch %s is not merged into %s; use force to discard", branch, m.Trunk)
		}
	}

	if err := git.RemoveWorktree(ctx, m.ProjectRoot, m.Path(featureID), force); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}

	if deleteBranch {
		if err := client.DeleteBranch(ctx, branch); err != nil {
			return fmt.Errorf("delete branch %s: %w", branch, err)
		}
	}
	return nil
}

// Status reports the state of a feature workspace.
type Status struct {
	Exists                bool     `json:"exists"`
	HasUncommittedChanges bool     `json:"has_uncommitted_changes"`
	CommitsAheadOfTrunk   int      `json:"commits_ahead_of_trunk"`
	DirtyPaths            []string `json:"dirty_paths,omitempty"`
	Ahead                 int      `json:"ahead"`
	Behind                int      `json:"behind"`
}

// GetStatus inspects a feature workspace.
func (m *Manager) GetStatus(ctx context.Context, featureID string) (*Status, error) {
	path := m.Path(featureID)
	if _, err := os.Stat(path); err != nil {
		return &Status{}, nil
	}

	client := git.NewClient(path)
	dirty, err := client.DirtyPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspace status: %w", err)
	}
	ahead, behind, err := client.AheadBehind(ctx, m.Trunk)
	if err != nil {
		return nil, fmt.Errorf("workspace status: %w", err)
	}

	return &Status{
		Exists:                true,
		HasUncommittedChanges: len(dirty) > 0,
		CommitsAheadOfTrunk:   ahead,
		DirtyPaths:            dirty,
		Ahead:                 ahead,
		Behind:                behind,
	}, nil
}

// SyncFromTrunk rebases the feature branch onto the fetched trunk head.
// It refuses when the workspace has uncommitted changes, and on rebase
// conflicts it aborts and returns a hint; no auto-resolution is attempted.
func (m *Manager) SyncFromTrunk(ctx context.Context, featureID string) error {
	path := m.Path(featureID)
	client := git.NewClient(path)

	dirty, err := client.DirtyPaths(ctx)
	if err != nil {
		return fmt.Errorf("sync workspace: %w", err)
	}
	if len(dirty) > 0 {
		return fmt.Errorf("workspace has uncommitted changes (%d files); commit or stash them first", len(dirty))
	}

	client.Fetch(ctx, m.Trunk)

	hasConflicts, err := client.Rebase(ctx, m.Trunk)
	if err != nil {
		return fmt.Errorf("rebase onto %s: %w", m.Trunk, err)
	}
	if hasConflicts {
		client.AbortRebase(ctx)
		return fmt.Errorf("rebase of %s onto %s hit conflicts; resolve manually with: git -C %s rebase %s",
			registry.BranchName(featureID), m.Trunk, path, m.Trunk)
	}
	return nil
}

// List returns feature worktrees under the manager's base directory,
// keyed by feature id.
func (m *Manager) List(ctx context.Context) (map[string]git.Worktree, error) {
	all, err := git.ListWorktrees(ctx, m.ProjectRoot)
	if err != nil {
		return nil, err
	}
	out := make(map[string]git.Worktree)
	for _, wt := range all {
		rel, err := filepath.Rel(m.WorktreeBase, wt.Path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		out[rel] = wt
	}
	return out, nil
}

// Prune drops stale worktree references.
func (m *Manager) Prune(ctx context.Context) {
	git.PruneWorktrees(ctx, m.ProjectRoot)
}
