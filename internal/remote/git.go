package remote

import (
	"context"
	"strings"
)

// Git runs git subcommands on the workstation inside a repository path.
type Git struct {
	transport *Transport
	repoPath  string
}

// NewGit creates a remote git helper for a workstation repository.
func NewGit(t *Transport, repoPath string) *Git {
	return &Git{transport: t, repoPath: repoPath}
}

func (g *Git) run(ctx context.Context, args ...string) Result {
	argv := append([]string{"git"}, args...)
	return g.transport.Run(ctx, argv, RunOptions{Cwd: g.repoPath})
}

// AddWorktree creates a worktree for branch, creating the branch from
// base when it does not yet exist.
func (g *Git) AddWorktree(ctx context.Context, path, branch, base string) Result {
	if !g.run(ctx, "rev-parse", "--verify", "refs/heads/"+branch).Ok() {
		if res := g.run(ctx, "branch", branch, base); !res.Ok() {
			return res
		}
	}
	return g.run(ctx, "worktree", "add", path, branch)
}

// RemoveWorktree removes a worktree, optionally forcing.
func (g *Git) RemoveWorktree(ctx context.Context, path string, force bool) Result {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	return g.run(ctx, args...)
}

// ListWorktrees returns worktree paths and branches from the porcelain
// listing.
func (g *Git) ListWorktrees(ctx context.Context) ([]WorktreeInfo, error) {
	res := g.run(ctx, "worktree", "list", "--porcelain")
	if !res.Ok() {
		return nil, resultErr("list worktrees", res)
	}

	var infos []WorktreeInfo
	var cur WorktreeInfo
	flush := func() {
		if cur.Path != "" {
			infos = append(infos, cur)
		}
		cur = WorktreeInfo{}
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return infos, nil
}

// WorktreeInfo describes one worktree on the workstation.
type WorktreeInfo struct {
	Path   string
	Branch string
}

// MergedBranches lists branches merged into target.
func (g *Git) MergedBranches(ctx context.Context, target string) ([]string, error) {
	res := g.run(ctx, "branch", "--merged", target, "--format=%(refname:short)")
	if !res.Ok() {
		return nil, resultErr("list merged branches", res)
	}
	var branches []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// MergeProbe attempts a no-commit merge of branch and reports conflicting
// paths. The merge is aborted afterward, even on success.
func (g *Git) MergeProbe(ctx context.Context, branch string) (conflicts []string, clean bool) {
	res := g.run(ctx, "merge", "--no-commit", "--no-ff", branch)
	if !res.Ok() {
		diff := g.run(ctx, "diff", "--name-only", "--diff-filter=U")
		for _, line := range strings.Split(strings.TrimSpace(diff.Stdout), "\n") {
			if line != "" {
				conflicts = append(conflicts, line)
			}
		}
	}
	g.run(ctx, "merge", "--abort")
	return conflicts, res.Ok()
}

func resultErr(op string, res Result) error {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	return &TransportError{Op: op, Message: msg, ReturnCode: res.ReturnCode}
}

// TransportError reports a failed remote operation.
type TransportError struct {
	Op         string
	Message    string
	ReturnCode int
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Message
}
