package git

import (
	"context"
	"strconv"
	"strings"
)

// Client provides git operations for a specific repository or worktree.
type Client struct {
	// RepoPath is the root directory of the git repository or worktree
	RepoPath string
}

// NewClient creates a new git client for the given repository path.
func NewClient(repoPath string) *Client {
	return &Client{RepoPath: repoPath}
}

// CreateBranch creates a new branch from the given start point.
func (c *Client) CreateBranch(ctx context.Context, branchName, fromBranch string) error {
	_, err := gitExec(ctx, c.RepoPath, "branch", branchName, fromBranch)
	return err
}

// BranchExists checks if a branch exists locally.
func (c *Client) BranchExists(ctx context.Context, branchName string) bool {
	_, err := gitExec(ctx, c.RepoPath, "rev-parse", "--verify", "refs/heads/"+branchName)
	return err == nil
}

// Checkout switches to the specified branch.
func (c *Client) Checkout(ctx context.Context, branchName string) error {
	_, err := gitExec(ctx, c.RepoPath, "checkout", branchName)
	return err
}

// DeleteBranch removes a branch locally. A missing branch is tolerated.
func (c *Client) DeleteBranch(ctx context.Context, branchName string) error {
	_, err := gitExec(ctx, c.RepoPath, "branch", "-D", branchName)
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	return err
}

// Pull updates the current branch from its upstream. Failures are
// tolerated: offline repositories and branches without upstreams are
// common in worktree setups.
func (c *Client) Pull(ctx context.Context) {
	_, _ = gitExec(ctx, c.RepoPath, "pull")
}

// Fetch fetches a branch from origin. Failures are tolerated.
func (c *Client) Fetch(ctx context.Context, branch string) {
	_, _ = gitExec(ctx, c.RepoPath, "fetch", "origin", branch)
}

// Head returns the commit hash of HEAD.
func (c *Client) Head(ctx context.Context) (string, error) {
	out, err := gitExec(ctx, c.RepoPath, "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

// MergedInto lists local branches already merged into the target branch.
func (c *Client) MergedInto(ctx context.Context, target string) ([]string, error) {
	out, err := gitExec(ctx, c.RepoPath, "branch", "--merged", target, "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// MergeNoFF performs a non-fast-forward merge of branch with the given
// commit message.
func (c *Client) MergeNoFF(ctx context.Context, branch, message string) error {
	_, err := gitExec(ctx, c.RepoPath, "merge", "--no-ff", branch, "-m", message)
	return err
}

// MergeProbe attempts a no-commit merge of branch and reports the
// conflicting paths. The merge is always aborted, even on success, so the
// probe is side-effect-free.
func (c *Client) MergeProbe(ctx context.Context, branch string) (conflicts []string, err error) {
	_, mergeErr := gitExec(ctx, c.RepoPath, "merge", "--no-commit", "--no-ff", branch)
	if mergeErr != nil {
		conflicts, err = c.UnmergedPaths(ctx)
	}
	// Abort regardless of outcome. "no merge to abort" is fine for
	// fast-forward-clean cases.
	_, _ = gitExec(ctx, c.RepoPath, "merge", "--abort")
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

// UnmergedPaths returns the files currently in a conflicted state.
func (c *Client) UnmergedPaths(ctx context.Context) ([]string, error) {
	out, err := gitExec(ctx, c.RepoPath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ResetHard resets the current branch by n commits, undoing merges.
func (c *Client) ResetHard(ctx context.Context, n int) error {
	_, err := gitExec(ctx, c.RepoPath, "reset", "--hard", "HEAD~"+strconv.Itoa(n))
	return err
}

// Rebase rebases the checked-out branch onto target. hasConflicts is true
// when the rebase stopped on conflicts.
func (c *Client) Rebase(ctx context.Context, target string) (hasConflicts bool, err error) {
	_, execErr := gitExec(ctx, c.RepoPath, "rebase", target)
	if execErr != nil {
		if strings.Contains(execErr.Error(), "CONFLICT") ||
			strings.Contains(execErr.Error(), "could not apply") {
			return true, nil
		}
		return false, execErr
	}
	return false, nil
}

// AbortRebase aborts an in-progress rebase. Tolerates "no rebase in progress".
func (c *Client) AbortRebase(ctx context.Context) {
	_, _ = gitExec(ctx, c.RepoPath, "rebase", "--abort")
}

// DirtyPaths returns paths with uncommitted changes (staged, unstaged, or
// untracked).
func (c *Client) DirtyPaths(ctx context.Context) ([]string, error) {
	out, err := gitExec(ctx, c.RepoPath, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 3 {
			paths = append(paths, strings.TrimSpace(line[3:]))
		}
	}
	return paths, nil
}

// AheadBehind returns how many commits the current branch is ahead of and
// behind the target branch.
func (c *Client) AheadBehind(ctx context.Context, target string) (ahead, behind int, err error) {
	out, err := gitExec(ctx, c.RepoPath, "rev-list", "--left-right", "--count", "HEAD..."+target)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) == 2 {
		ahead, _ = strconv.Atoi(fields[0])
		behind, _ = strconv.Atoi(fields[1])
	}
	return ahead, behind, nil
}
