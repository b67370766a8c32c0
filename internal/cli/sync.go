package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/piregistry"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/remote"
	"github.com/W1ndR1dr/flowforge/internal/style"
	"github.com/W1ndR1dr/flowforge/internal/syncengine"
)

// SyncOptions holds flags for the sync command
type SyncOptions struct {
	Host      string
	Project   string
	CachePath string
	NoMirror  bool
	Output    string
}

// NewSyncCmd creates the sync command
func NewSyncCmd(app *App) *cobra.Command {
	opts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile cached projects with the workstation",
		Long: `Reconcile cached projects with the workstation: replay queued offline
mutations against the authoritative registries, re-fetch them, and
refresh the local cache and registry mirrors. Projects enter the cache
the first time they sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunSync(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", config.MacHost(),
		"Workstation ssh destination (default $"+config.EnvMacHost+")")
	cmd.Flags().StringVar(&opts.Project, "project", "",
		"Sync a single cached project")
	cmd.Flags().StringVar(&opts.CachePath, "cache", "",
		"Cache database path (default ~/.flowforge-cache/flowforge.db)")
	cmd.Flags().BoolVar(&opts.NoMirror, "no-mirror", false,
		"Skip refreshing the local registry mirrors")
	addOutputFlag(cmd, &opts.Output)

	return cmd
}

// RunSync executes a one-shot sync pass
func (a *App) RunSync(cmd *cobra.Command, opts SyncOptions) error {
	if opts.Host == "" {
		return fmt.Errorf("no workstation host (pass --host or set %s)", config.EnvMacHost)
	}

	cachePath := opts.CachePath
	if cachePath == "" {
		cachePath = cache.DefaultPath()
	}
	db, err := cache.Open(cachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer db.Close()

	engine := syncengine.NewEngine(remote.New(opts.Host), db)
	if !engine.Probe(cmd.Context()) {
		return fmt.Errorf("workstation %s is unreachable", opts.Host)
	}

	var results []*syncengine.SyncResult
	if opts.Project != "" {
		p, err := db.GetProject(opts.Project)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("project %s is not cached yet (run a full sync first)", opts.Project)
		}
		res, err := engine.SyncProject(cmd.Context(), p.Name, p.Path)
		if err != nil {
			return err
		}
		results = append(results, res)
	} else {
		results, err = engine.SyncAllProjects(cmd.Context())
		if err != nil {
			return err
		}
	}

	if !opts.NoMirror {
		store := piregistry.NewStore()
		for _, res := range results {
			if err := mirrorProject(db, store, res.ProjectName); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: mirror %s: %v\n", res.ProjectName, err)
			}
		}
	}

	return printData(cmd.OutOrStdout(), opts.Output, results, func() string {
		if len(results) == 0 {
			return "Nothing to sync.\n"
		}
		t := style.NewTable(
			style.Column{Name: "PROJECT", Width: 20},
			style.Column{Name: "STATUS", Width: 10},
			style.Column{Name: "REPLAYED", Width: 8, Align: style.AlignRight},
			style.Column{Name: "FAILED", Width: 6, Align: style.AlignRight},
			style.Column{Name: "CONFLICTS", Width: 9, Align: style.AlignRight},
			style.Column{Name: "HASH", Width: 16},
		)
		for _, res := range results {
			status := style.Green.Render(res.Status)
			if res.Status != cache.SyncSynced {
				status = style.Yellow.Render(res.Status)
			}
			t.AddRow(
				res.ProjectName,
				status,
				strconv.Itoa(res.Replayed),
				strconv.Itoa(res.Failed),
				strconv.Itoa(len(res.Conflicts)),
				res.RegistryHash,
			)
		}
		return t.Render()
	})
}

// mirrorProject refreshes the local registry mirror from the freshly
// cached copy, recording the workstation path in the mirrored config.
func mirrorProject(db *cache.DB, store *piregistry.Store, name string) error {
	p, err := db.GetProject(name)
	if err != nil {
		return err
	}
	if p == nil || len(p.RegistryJSON) == 0 {
		return fmt.Errorf("no cached registry")
	}
	doc, err := registry.ParseDocument(p.RegistryJSON)
	if err != nil {
		return err
	}
	if err := store.SaveRegistry(name, doc); err != nil {
		return err
	}

	cfg := config.Default(name)
	if len(p.ConfigJSON) > 0 {
		if parsed, err := config.Parse(p.ConfigJSON, name); err == nil {
			cfg = parsed
		}
	}
	cfg.Project.MacPath = p.Path
	return store.SaveConfig(name, cfg)
}
