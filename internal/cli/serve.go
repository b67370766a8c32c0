package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/executor"
	"github.com/W1ndR1dr/flowforge/internal/piregistry"
	"github.com/W1ndR1dr/flowforge/internal/remote"
	"github.com/W1ndR1dr/flowforge/internal/rpc"
	"github.com/W1ndR1dr/flowforge/internal/syncengine"
)

// ServeOptions holds flags for the serve command
type ServeOptions struct {
	ProjectsBase    string
	MacProjectsBase string
	Host            string
	CachePath       string
	NoSync          bool
}

// NewServeCmd creates the serve command
func NewServeCmd(app *App) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool-call interface over stdio",
		Long: `Serve the tool-call interface over stdio. Exposes the registry,
executor, and merge orchestrator as tools, keeps the offline cache
reconciled with the workstation in the background, and picks up
external edits to the registry mirrors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServe(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.ProjectsBase, "projects", config.ProjectsPath(),
		"Local projects directory (default $"+config.EnvProjectsPath+")")
	cmd.Flags().StringVar(&opts.MacProjectsBase, "mac-projects", config.MacProjectsPath(),
		"Workstation projects directory (default $"+config.EnvMacProjectsPath+")")
	cmd.Flags().StringVar(&opts.Host, "host", config.MacHost(),
		"Workstation ssh destination (default $"+config.EnvMacHost+")")
	cmd.Flags().StringVar(&opts.CachePath, "cache", "",
		"Cache database path (default ~/.flowforge-cache/flowforge.db)")
	cmd.Flags().BoolVar(&opts.NoSync, "no-sync", false,
		"Disable the background sync engine")

	return cmd
}

// RunServe wires the service and blocks on the stdio transport
func (a *App) RunServe(cmd *cobra.Command, opts ServeOptions) error {
	if opts.ProjectsBase == "" {
		return fmt.Errorf("no projects directory (pass --projects or set %s)", config.EnvProjectsPath)
	}

	svc := rpc.NewService(opts.ProjectsBase)
	svc.MacProjectsBase = opts.MacProjectsBase
	svc.Executor = executor.New()
	if opts.Host != "" {
		svc.Transport = remote.New(opts.Host)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down", sig)
		cancel()
	}()

	if svc.Transport != nil && !opts.NoSync {
		cachePath := opts.CachePath
		if cachePath == "" {
			cachePath = cache.DefaultPath()
		}
		db, err := cache.Open(cachePath)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer db.Close()

		engine := syncengine.NewEngine(svc.Transport, db)
		engine.OnReachabilityChange = func(reachable bool) {
			if reachable {
				log.Printf("workstation %s reachable", opts.Host)
			} else {
				log.Printf("workstation %s unreachable, queueing mutations", opts.Host)
			}
		}
		svc.Cache = db
		svc.Offline = func() bool { return !engine.Reachable() }
		go engine.Run(ctx)
	}

	// External edits to a mirrored registry must not be served stale.
	watcher, err := piregistry.Watch(config.RegistryBase(), func(project string) {
		svc.Invalidate(filepath.Join(opts.ProjectsBase, project))
		log.Printf("registry mirror for %s changed, cache invalidated", project)
	})
	if err == nil {
		defer watcher.Close()
	} else {
		log.Printf("warning: registry mirror watcher disabled: %v", err)
	}

	version := a.versionInfo.Version
	if version == "" {
		version = "dev"
	}
	mcpServer := server.NewMCPServer("flowforge", version)
	rpc.Register(mcpServer, svc)

	log.Printf("flowforge serving %d projects from %s", countProjects(opts.ProjectsBase), opts.ProjectsBase)
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func countProjects(base string) int {
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(base, entry.Name(), ".flowforge")); err == nil {
			n++
		}
	}
	return n
}
