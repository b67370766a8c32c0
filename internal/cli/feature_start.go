package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/executor"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/style"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// NewFeatureStartCmd creates the feature start command
func NewFeatureStartCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Implement a feature in an isolated worktree",
		Long: `Implement a feature in an isolated worktree. The feature's workspace and
branch are created if missing, a prompt is generated from its spec, and
the assistant runs until it reports completion. Progress streams to
stdout; the command blocks until the run finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunFeatureStart(cmd, args[0])
		},
	}

	return cmd
}

// RunFeatureStart executes the blocking feature implementation flow
func (a *App) RunFeatureStart(cmd *cobra.Command, id string) error {
	root, cfg, reg, err := openProject()
	if err != nil {
		return err
	}
	f, err := reg.Get(id)
	if err != nil {
		return err
	}
	if f.Status == registry.StatusInProgress {
		return fmt.Errorf("feature %s is already in progress", id)
	}

	ws := workspace.NewManager(root, cfg.Project.WorktreeBase, cfg.Project.MainBranch)
	wsPath := ws.Path(id)
	if _, err := os.Stat(wsPath); err != nil {
		if _, err := ws.Create(cmd.Context(), id, ""); err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created workspace %s\n", wsPath)
	}

	specText := featureSpecText(root, f)
	prompt := executor.BuildPrompt(cfg.Project.Name, id, specText, cfg.Project.DefaultPersona)
	promptPath := filepath.Join(root, registry.Dir, "prompts", id+".md")
	if err := os.MkdirAll(filepath.Dir(promptPath), 0o755); err != nil {
		return fmt.Errorf("write prompt: %w", err)
	}
	if err := os.WriteFile(promptPath, []byte(prompt), 0o644); err != nil {
		return fmt.Errorf("write prompt: %w", err)
	}

	status := registry.StatusInProgress
	branch := registry.BranchName(id)
	if _, err := reg.Update(id, registry.Patch{
		Status:        &status,
		Branch:        &branch,
		WorkspacePath: &wsPath,
		PromptPath:    &promptPath,
	}); err != nil {
		return fmt.Errorf("mark in-progress: %w", err)
	}

	ex := executor.New()
	progress := ex.ExecuteFeature(cmd.Context(), executor.Request{
		FeatureID: id,
		Spec:      specText,
		Project: executor.Project{
			Name:   cfg.Project.Name,
			Root:   root,
			Config: cfg,
		},
	})

	var last executor.Progress
	for p := range progress {
		last = p
		switch p.State {
		case executor.StateRunning:
			if a.verbose {
				fmt.Fprintln(cmd.OutOrStdout(), p.Message)
			}
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", style.Dim.Render("["+string(p.State)+"]"), p.Message)
		}
	}

	switch last.State {
	case executor.StateCompleted:
		st := registry.StatusReview
		if _, err := reg.Update(id, registry.Patch{Status: &st}); err != nil {
			return fmt.Errorf("mark review: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Feature %s is ready for review.\n",
			style.Green.Render("Done."), style.Bold.Render(id))
		return nil
	default:
		// Back to planned: the registry drops the branch and workspace
		// references, though the worktree itself stays on disk.
		st := registry.StatusPlanned
		if _, err := reg.Update(id, registry.Patch{Status: &st}); err != nil {
			return fmt.Errorf("mark planned: %w", err)
		}
		return fmt.Errorf("execution failed: %s", last.Message)
	}
}

// featureSpecText prefers the feature's spec file, falling back to its
// description.
func featureSpecText(root string, f *registry.Feature) string {
	if f.SpecPath != "" {
		specPath := f.SpecPath
		if !filepath.IsAbs(specPath) {
			specPath = filepath.Join(root, specPath)
		}
		if data, err := os.ReadFile(specPath); err == nil {
			return string(data)
		}
	}
	return f.Description
}
