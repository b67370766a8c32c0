package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/merge"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/style"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// MergeOptions holds flags for the merge command
type MergeOptions struct {
	ID         string
	All        bool
	NoValidate bool
	KeepBranch bool
}

// NewMergeCmd creates the merge command
func NewMergeCmd(app *App) *cobra.Command {
	opts := &MergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge [id]",
		Short: "Merge reviewed features into trunk",
		Long: `Merge reviewed features into trunk. With an id, merges that feature;
with --all, merges every review feature in dependency order, stopping at
the first failure. Each merge is validated with the project's build
command unless --no-validate is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.ID = args[0]
			}
			if opts.All == (opts.ID != "") {
				return fmt.Errorf("pass either a feature id or --all")
			}
			return app.RunMerge(cmd, *opts)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false,
		"Merge all review features in dependency order")
	cmd.Flags().BoolVar(&opts.NoValidate, "no-validate", false,
		"Skip build validation after merging")
	cmd.Flags().BoolVar(&opts.KeepBranch, "keep-branch", false,
		"Keep the feature branch and worktree after a single merge")

	return cmd
}

// RunMerge executes the merge workflow
func (a *App) RunMerge(cmd *cobra.Command, opts MergeOptions) error {
	root, cfg, reg, err := openProject()
	if err != nil {
		return err
	}
	ws := workspace.NewManager(root, cfg.Project.WorktreeBase, cfg.Project.MainBranch)
	orch := merge.New(reg, ws, root, cfg.Project.MainBranch, cfg.Project.BuildCommand)
	validate := !opts.NoValidate

	if opts.All {
		results, err := orch.MergeAllSafe(cmd.Context(), validate)
		if err != nil {
			return err
		}
		for _, res := range results {
			a.printMergeResult(cmd, res, cfg.Project.MainBranch)
		}
		for _, res := range results {
			if !res.Success {
				return fmt.Errorf("stopped at %s: %s", res.FeatureID, res.Message)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %d feature(s).\n", len(results))
		return nil
	}

	res, err := orch.Merge(cmd.Context(), opts.ID, validate, !opts.KeepBranch)
	if err != nil {
		return err
	}
	a.printMergeResult(cmd, res, cfg.Project.MainBranch)
	if !res.Success {
		return fmt.Errorf("merge failed: %s", res.Message)
	}
	return nil
}

func (a *App) printMergeResult(cmd *cobra.Command, res *merge.Result, trunk string) {
	out := cmd.OutOrStdout()
	if res.Success {
		fmt.Fprintf(out, "%s %s\n", style.Green.Render("merged"), res.FeatureID)
		if res.CleanupWarning != "" {
			fmt.Fprintf(out, "  warning: %s\n", res.CleanupWarning)
		}
		return
	}

	fmt.Fprintf(out, "%s %s: %s\n", style.Red.Render("failed"), res.FeatureID, res.Message)
	if len(res.ConflictFiles) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, merge.ConflictPrompt(res.FeatureID, registry.BranchName(res.FeatureID), trunk, res.ConflictFiles))
	}
	if res.ValidationOutput != "" {
		fmt.Fprintf(out, "  validation output:\n%s\n", res.ValidationOutput)
	}
}
