package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/style"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// projectStatus is the status command's payload.
type projectStatus struct {
	Project    string         `json:"project"`
	Stats      registry.Stats `json:"stats"`
	Worktrees  []string       `json:"worktrees"`
	MainBranch string         `json:"main_branch"`
}

// NewStatusCmd creates the status command
func NewStatusCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunStatus(cmd, output)
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

// RunStatus prints feature counts and active worktrees
func (a *App) RunStatus(cmd *cobra.Command, output string) error {
	root, cfg, reg, err := openProject()
	if err != nil {
		return err
	}

	st := projectStatus{
		Project:    cfg.Project.Name,
		Stats:      reg.GetStats(),
		MainBranch: cfg.Project.MainBranch,
	}

	ws := workspace.NewManager(root, cfg.Project.WorktreeBase, cfg.Project.MainBranch)
	if worktrees, err := ws.List(cmd.Context()); err == nil {
		for id := range worktrees {
			st.Worktrees = append(st.Worktrees, id)
		}
		sort.Strings(st.Worktrees)
	}

	return printData(cmd.OutOrStdout(), output, st, func() string {
		t := style.NewTable(
			style.Column{Name: "STATUS", Width: 12},
			style.Column{Name: "COUNT", Width: 5, Align: style.AlignRight},
		)
		for _, s := range []registry.Status{
			registry.StatusPlanned,
			registry.StatusInProgress,
			registry.StatusReview,
			registry.StatusCompleted,
			registry.StatusBlocked,
		} {
			if n := st.Stats.ByStatus[s]; n > 0 {
				t.AddRow(style.Status(s), strconv.Itoa(n))
			}
		}
		out := style.Bold.Render(st.Project) + " (trunk " + st.MainBranch + ")\n"
		out += "  " + strconv.Itoa(st.Stats.Total) + " features, " +
			strconv.Itoa(len(st.Worktrees)) + " active worktrees, merge queue depth " +
			strconv.Itoa(st.Stats.QueueDepth) + "\n\n"
		return out + t.Render()
	})
}
