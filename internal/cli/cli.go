// Package cli implements the flowforge command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// VersionInfo carries build-time version metadata.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	rootCmd *cobra.Command

	verbose bool

	versionInfo VersionInfo
}

// New creates a new CLI application
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version strings for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// Root exposes the root command, primarily for tests.
func (a *App) Root() *cobra.Command {
	return a.rootCmd
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "flowforge",
		Short: "AI-assisted parallel feature development",
		Long: `Flowforge orchestrates parallel feature development: features live in a
per-project registry, implementations run in isolated git worktrees, and
completed work is merged back to trunk in dependency order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(
		NewInitCmd(a),
		NewFeatureCmd(a),
		NewChatCmd(a),
		NewMergeCmd(a),
		NewMergeCheckCmd(a),
		NewPruneCmd(a),
		NewStatusCmd(a),
		NewSyncCmd(a),
		NewServeCmd(a),
		NewVersionCmd(a),
	)
}

// projectRoot walks upward from the working directory until it finds a
// .flowforge metadata directory.
func projectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, registry.Dir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not inside a flowforge project (no %s directory found)", registry.Dir)
		}
		dir = parent
	}
}

// openProject loads the config and registry for the enclosing project.
func openProject() (string, *config.Config, *registry.Registry, error) {
	root, err := projectRoot()
	if err != nil {
		return "", nil, nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, nil, err
	}
	reg, err := registry.Open(root)
	if err != nil {
		return "", nil, nil, err
	}
	return root, cfg, reg, nil
}
