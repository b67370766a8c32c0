package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Worktree represents an active git worktree.
type Worktree struct {
	// Path is the absolute path to the worktree directory
	Path string

	// Branch is the branch name checked out in this worktree
	Branch string
}

// AddWorktree creates a worktree at path with the given branch checked out.
// The branch must already exist.
func AddWorktree(ctx context.Context, repoRoot, path, branch string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create worktree base: %w", err)
	}
	_, err := gitExec(ctx, repoRoot, "worktree", "add", path, branch)
	return err
}

// RemoveWorktree removes a worktree. With force, uncommitted changes in the
// worktree are discarded.
func RemoveWorktree(ctx context.Context, repoRoot, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := gitExec(ctx, repoRoot, args...)
	return err
}

// ListWorktrees parses `git worktree list --porcelain` output.
func ListWorktrees(ctx context.Context, repoRoot string) ([]Worktree, error) {
	output, err := gitExec(ctx, repoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return parseWorktreeList(output), nil
}

func parseWorktreeList(output string) []Worktree {
	var worktrees []Worktree
	var current Worktree

	flush := func() {
		if current.Path != "" {
			worktrees = append(worktrees, current)
		}
		current = Worktree{}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()

	return worktrees
}

// PruneWorktrees drops stale worktree references. Failures are tolerated.
func PruneWorktrees(ctx context.Context, repoRoot string) {
	_, _ = gitExec(ctx, repoRoot, "worktree", "prune")
}
