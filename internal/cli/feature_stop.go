package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// NewFeatureStopCmd creates the feature stop command
func NewFeatureStopCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop an in-progress feature and move it to review",
		Long: `Stop an in-progress feature and move it to review. The feature's branch
and workspace are kept so the partial work can be inspected and resumed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, reg, err := openProject()
			if err != nil {
				return err
			}
			f, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			if f.Status != registry.StatusInProgress {
				return fmt.Errorf("feature %s is not in progress (status %s)", f.ID, f.Status)
			}
			status := registry.StatusReview
			if _, err := reg.Update(f.ID, registry.Patch{Status: &status}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped feature %s (moved to review)\n", f.ID)
			return nil
		},
	}

	return cmd
}
