package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFeatureDeleteCmd creates the feature delete command
func NewFeatureDeleteCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a feature from the registry",
		Long: `Remove a feature from the registry. Features that are in progress or
have children are refused unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, reg, err := openProject()
			if err != nil {
				return err
			}
			if err := reg.Remove(args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted feature %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false,
		"Delete even if in progress or referenced by other features")

	return cmd
}
