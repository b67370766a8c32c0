package cli

import (
	"github.com/spf13/cobra"
)

// NewFeatureCmd creates the feature parent command
func NewFeatureCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Manage the project's feature registry",
		Long: `Manage the project's feature registry: add planned features, list and
update them, and start or stop implementation runs in isolated worktrees.`,
	}

	cmd.AddCommand(
		NewFeatureAddCmd(app),
		NewFeatureListCmd(app),
		NewFeatureUpdateCmd(app),
		NewFeatureDeleteCmd(app),
		NewFeatureStartCmd(app),
		NewFeatureStopCmd(app),
	)

	return cmd
}
