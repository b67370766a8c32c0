package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/merge"
	"github.com/W1ndR1dr/flowforge/internal/style"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// NewMergeCheckCmd creates the merge-check command
func NewMergeCheckCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge-check [id]",
		Short: "Probe review features for merge conflicts",
		Long: `Probe review features for merge conflicts without changing anything.
With an id, checks that feature; otherwise checks every review feature
in the order they would merge.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return app.RunMergeCheck(cmd, id, output)
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

// mergeCheckRow is one feature's probe outcome.
type mergeCheckRow struct {
	FeatureID     string   `json:"feature_id"`
	Clean         bool     `json:"clean"`
	ConflictFiles []string `json:"conflict_files,omitempty"`
}

// RunMergeCheck probes merge candidates for conflicts
func (a *App) RunMergeCheck(cmd *cobra.Command, id, output string) error {
	root, cfg, reg, err := openProject()
	if err != nil {
		return err
	}
	ws := workspace.NewManager(root, cfg.Project.WorktreeBase, cfg.Project.MainBranch)
	orch := merge.New(reg, ws, root, cfg.Project.MainBranch, cfg.Project.BuildCommand)

	ids := orch.ComputeMergeOrder()
	if id != "" {
		ids = []string{id}
	}

	var rows []mergeCheckRow
	for _, fid := range ids {
		report, err := orch.CheckConflicts(cmd.Context(), fid)
		if err != nil {
			return fmt.Errorf("check %s: %w", fid, err)
		}
		rows = append(rows, mergeCheckRow{
			FeatureID:     fid,
			Clean:         report.Success,
			ConflictFiles: report.ConflictFiles,
		})
	}

	return printData(cmd.OutOrStdout(), output, rows, func() string {
		if len(rows) == 0 {
			return "No features in review.\n"
		}
		t := style.NewTable(
			style.Column{Name: "ORDER", Width: 5, Align: style.AlignRight},
			style.Column{Name: "ID", Width: 24},
			style.Column{Name: "RESULT", Width: 10},
			style.Column{Name: "CONFLICTS", Width: 40},
		)
		for i, row := range rows {
			result := style.Green.Render("clean")
			if !row.Clean {
				result = style.Red.Render("conflict")
			}
			t.AddRow(
				fmt.Sprintf("%d", i+1),
				row.FeatureID,
				result,
				strings.Join(row.ConflictFiles, ", "),
			)
		}
		return t.Render()
	})
}
