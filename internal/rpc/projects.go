package rpc

import (
	"context"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/remote"
)

// ProjectInfo describes one discovered project.
type ProjectInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Source string `json:"source"` // "local" or "workstation"
}

// ListProjects enumerates directories containing the .flowforge marker.
// With a workstation configured the enumeration runs there; otherwise the
// local projects base is walked.
func (s *Service) ListProjects(ctx context.Context) *Response {
	if s.Transport != nil && s.MacProjectsBase != "" {
		projects, err := s.listWorkstationProjects(ctx)
		if err != nil {
			return fail("list workstation projects: %v", err)
		}
		return ok("found "+plural(len(projects), "project"), projects)
	}

	entries, err := os.ReadDir(s.ProjectsBase)
	if err != nil {
		return fail("read projects directory %s: %v", s.ProjectsBase, err)
	}
	var projects []ProjectInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		root := s.projectPath(entry.Name())
		if info, err := os.Stat(path.Join(root, registry.Dir)); err == nil && info.IsDir() {
			projects = append(projects, ProjectInfo{Name: entry.Name(), Path: root, Source: "local"})
		}
	}
	return ok("found "+plural(len(projects), "project"), projects)
}

// listWorkstationProjects lists candidate directories remotely, then
// probes each for the marker in parallel.
func (s *Service) listWorkstationProjects(ctx context.Context) ([]ProjectInfo, error) {
	res := s.Transport.Run(ctx, []string{"ls", "-1", s.MacProjectsBase}, remote.RunOptions{})
	if !res.Ok() {
		return nil, &remote.TransportError{Op: "list projects", Message: strings.TrimSpace(res.Stderr), ReturnCode: res.ReturnCode}
	}

	var candidates []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			candidates = append(candidates, name)
		}
	}

	var mu sync.Mutex
	var projects []ProjectInfo
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range candidates {
		g.Go(func() error {
			marker := path.Join(s.MacProjectsBase, name, registry.Dir)
			if s.Transport.Exists(gctx, marker, remote.KindDir) {
				mu.Lock()
				projects = append(projects, ProjectInfo{
					Name:   name,
					Path:   path.Join(s.MacProjectsBase, name),
					Source: "workstation",
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// Status reports a project's aggregate state: registry stats plus the
// live feature worktrees.
func (s *Service) Status(ctx context.Context, project string) *Response {
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}

	stats := e.reg.GetStats()
	worktrees, err := s.workspaces(root, e).List(ctx)
	if err != nil {
		return fail("list worktrees: %v", err)
	}

	data := map[string]any{
		"project":   project,
		"path":      root,
		"stats":     stats,
		"worktrees": len(worktrees),
	}
	if s.Executor != nil {
		data["active_executions"] = s.Executor.ActiveCount()
		data["queued_executions"] = s.Executor.QueuedCount()
	}
	return ok(project+": "+plural(stats.Total, "feature"), data)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
