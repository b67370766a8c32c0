package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/style"
)

// FeatureUpdateOptions holds flags for the feature update command
type FeatureUpdateOptions struct {
	ID          string
	Title       string
	Description string
	Status      string
	Priority    int
	Complexity  string
	Tags        string
}

// NewFeatureUpdateCmd creates the feature update command
func NewFeatureUpdateCmd(app *App) *cobra.Command {
	opts := &FeatureUpdateOptions{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of a feature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			return app.RunFeatureUpdate(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "New title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "New description")
	cmd.Flags().StringVar(&opts.Status, "status", "",
		"New status (planned, in-progress, review, completed, blocked)")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "New priority")
	cmd.Flags().StringVar(&opts.Complexity, "complexity", "",
		"New complexity (small, medium, large, epic)")
	cmd.Flags().StringVar(&opts.Tags, "tags", "", "Replacement tag list (comma separated)")

	return cmd
}

// RunFeatureUpdate applies the changed flags as a partial update
func (a *App) RunFeatureUpdate(cmd *cobra.Command, opts FeatureUpdateOptions) error {
	_, _, reg, err := openProject()
	if err != nil {
		return err
	}

	var patch registry.Patch
	changed := false
	flags := cmd.Flags()
	if flags.Changed("title") {
		patch.Title = &opts.Title
		changed = true
	}
	if flags.Changed("description") {
		patch.Description = &opts.Description
		changed = true
	}
	if flags.Changed("status") {
		st := registry.Status(opts.Status)
		patch.Status = &st
		changed = true
	}
	if flags.Changed("priority") {
		patch.Priority = &opts.Priority
		changed = true
	}
	if flags.Changed("complexity") {
		c := registry.Complexity(opts.Complexity)
		patch.Complexity = &c
		changed = true
	}
	if flags.Changed("tags") {
		tags := splitCommaList(opts.Tags)
		patch.Tags = &tags
		changed = true
	}
	if !changed {
		return fmt.Errorf("no fields to update (pass at least one of --title, --description, --status, --priority, --complexity, --tags)")
	}

	f, err := reg.Update(opts.ID, patch)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated feature %s (%s)\n", style.Bold.Render(f.ID), style.Status(f.Status))
	return nil
}

// splitCommaList splits a comma separated flag value, dropping empties.
func splitCommaList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
