package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/style"
)

// FeatureListOptions holds flags for the feature list command
type FeatureListOptions struct {
	Status string
	Tag    string
	Output string
}

// NewFeatureListCmd creates the feature list command
func NewFeatureListCmd(app *App) *cobra.Command {
	opts := &FeatureListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List features in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunFeatureList(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "",
		"Filter by status (planned, in-progress, review, completed, blocked)")
	cmd.Flags().StringVar(&opts.Tag, "tag", "",
		"Filter by tag")
	addOutputFlag(cmd, &opts.Output)

	return cmd
}

// RunFeatureList lists registry features
func (a *App) RunFeatureList(cmd *cobra.Command, opts FeatureListOptions) error {
	if opts.Status != "" && !registry.IsValidStatus(registry.Status(opts.Status)) {
		return &registry.ValidationError{Field: "status", Value: opts.Status, Message: "unknown status"}
	}

	_, _, reg, err := openProject()
	if err != nil {
		return err
	}

	features := reg.List(registry.ListFilter{
		Status: registry.Status(opts.Status),
		Tag:    opts.Tag,
	})

	return printData(cmd.OutOrStdout(), opts.Output, features, func() string {
		if len(features) == 0 {
			return "No features.\n"
		}
		t := style.NewTable(
			style.Column{Name: "ID", Width: 24},
			style.Column{Name: "STATUS", Width: 12},
			style.Column{Name: "PRI", Width: 3, Align: style.AlignRight},
			style.Column{Name: "DEPS", Width: 20},
			style.Column{Name: "TITLE", Width: 40},
		)
		for _, f := range features {
			t.AddRow(
				f.ID,
				style.Status(f.Status),
				strconv.Itoa(f.Priority),
				strings.Join(f.DependsOn, ","),
				f.Title,
			)
		}
		return t.Render()
	})
}
