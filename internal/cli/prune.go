package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// NewPruneCmd creates the prune command
func NewPruneCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Clean up stale worktree state",
		Long: `Clean up stale worktree state: prunes git's records of worktrees whose
directories are gone and removes worktrees for features no longer in the
registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, reg, err := openProject()
			if err != nil {
				return err
			}
			ws := workspace.NewManager(root, cfg.Project.WorktreeBase, cfg.Project.MainBranch)
			ws.Prune(cmd.Context())

			worktrees, err := ws.List(cmd.Context())
			if err != nil {
				return err
			}
			removed := 0
			for id := range worktrees {
				if _, err := reg.Get(id); err == nil {
					continue
				}
				if err := ws.Remove(cmd.Context(), id, true, false); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: remove orphan %s: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed orphan worktree %s\n", id)
				removed++
			}
			if removed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
			}
			return nil
		},
	}

	return cmd
}
