package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/style"
)

// FeatureAddOptions holds flags for the feature add command
type FeatureAddOptions struct {
	Title       string
	Description string
	Priority    int
	Complexity  string
	Parent      string
	DependsOn   []string
	Tags        []string
}

// NewFeatureAddCmd creates the feature add command
func NewFeatureAddCmd(app *App) *cobra.Command {
	opts := &FeatureAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a planned feature to the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Title = args[0]
			return app.RunFeatureAdd(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.Description, "description", "",
		"Feature description")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0,
		"Priority (lower merges first)")
	cmd.Flags().StringVar(&opts.Complexity, "complexity", "",
		"Complexity: small, medium, large, or epic")
	cmd.Flags().StringVar(&opts.Parent, "parent", "",
		"Parent feature id")
	cmd.Flags().StringSliceVar(&opts.DependsOn, "depends-on", nil,
		"Feature ids this feature depends on")
	cmd.Flags().StringSliceVar(&opts.Tags, "tags", nil,
		"Tags for grouping and filtering")

	return cmd
}

// RunFeatureAdd adds a feature to the enclosing project's registry
func (a *App) RunFeatureAdd(cmd *cobra.Command, opts FeatureAddOptions) error {
	_, _, reg, err := openProject()
	if err != nil {
		return err
	}

	f, err := reg.Add(opts.Title, registry.AddOptions{
		Description: opts.Description,
		Priority:    opts.Priority,
		Complexity:  registry.Complexity(opts.Complexity),
		Parent:      opts.Parent,
		DependsOn:   opts.DependsOn,
		Tags:        opts.Tags,
	})
	var capErr *registry.PlannedCapError
	if errors.As(err, &capErr) {
		fmt.Fprintln(cmd.OutOrStdout(), style.Yellow.Render("Planned feature cap reached."))
		fmt.Fprintln(cmd.OutOrStdout(), "Currently planned:")
		for _, title := range capErr.PlannedTitles {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", title)
		}
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added feature %s (%s)\n", style.Bold.Render(f.ID), style.Status(f.Status))
	return nil
}
