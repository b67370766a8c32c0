package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// NewInitCmd creates the init command
func NewInitCmd(app *App) *cobra.Command {
	var mainBranch string

	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Initialize flowforge in the current directory",
		Long: `Initialize flowforge in the current directory: creates the .flowforge
metadata directory with a default config and an empty feature registry.
The project name defaults to the directory name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			name := filepath.Base(cwd)
			if len(args) == 1 {
				name = args[0]
			}

			if _, err := os.Stat(filepath.Join(cwd, registry.Dir, registry.FileName)); err == nil {
				return fmt.Errorf("already initialized: %s exists", filepath.Join(registry.Dir, registry.FileName))
			}

			cfg := config.Default(name)
			cfg.Project.MainBranch = mainBranch
			if err := config.Save(cwd, cfg); err != nil {
				return err
			}
			if err := registry.NewStore(cwd).Save(registry.NewDocument()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized flowforge project %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&mainBranch, "main-branch", "main",
		"Trunk branch merges target")

	return cmd
}
