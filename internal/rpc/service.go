// Package rpc is the tool-call façade: ten tools over the registry,
// workspaces, executor, and merge orchestrator, each answering with a
// {success, message, data} envelope.
package rpc

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/executor"
	"github.com/W1ndR1dr/flowforge/internal/pathmap"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/remote"
	"github.com/W1ndR1dr/flowforge/internal/workspace"
)

// Response is the envelope every tool returns.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(message string, data any) *Response {
	return &Response{Success: true, Message: message, Data: data}
}

func fail(format string, args ...any) *Response {
	return &Response{Message: fmt.Sprintf(format, args...)}
}

// Service backs the tool table. It keeps a per-process cache of loaded
// (config, registry) pairs keyed by project path, invalidated on any
// mutation.
type Service struct {
	// ProjectsBase is the local directory holding project checkouts
	ProjectsBase string

	// MacProjectsBase is the workstation-side projects directory; used
	// with Transport for remote project enumeration
	MacProjectsBase string

	// Transport reaches the workstation; nil means fully local
	Transport *remote.Transport

	// Executor runs feature implementations; nil disables start/stop
	Executor *executor.Executor

	// Cache holds queued mutations while the workstation is out of
	// scope; nil disables queueing
	Cache *cache.DB

	// Offline reports whether the workstation is currently unreachable
	Offline func() bool

	mu      sync.Mutex
	entries map[string]*projectEntry
}

type projectEntry struct {
	cfg *config.Config
	reg *registry.Registry
}

// NewService creates a service rooted at the local projects directory.
func NewService(projectsBase string) *Service {
	return &Service{
		ProjectsBase: projectsBase,
		entries:      make(map[string]*projectEntry),
	}
}

// projectPath resolves a project name to its local checkout.
func (s *Service) projectPath(project string) string {
	return filepath.Join(s.ProjectsBase, project)
}

// load returns the cached (config, registry) pair for a project path,
// reading both from disk on a cache miss.
func (s *Service) load(path string) (*projectEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, cached := s.entries[path]; cached {
		return e, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Open(path)
	if err != nil {
		return nil, err
	}
	e := &projectEntry{cfg: cfg, reg: reg}
	s.entries[path] = e
	return e, nil
}

// Invalidate drops the cached pair for a project path. Every mutating
// tool calls this so the next read observes external changes too.
func (s *Service) Invalidate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, path)
}

// pathMapper translates between the local and workstation filesystem
// namespaces. Registries synced from the workstation record absolute
// workstation paths; served locally, those must be rewritten.
func (s *Service) pathMapper() *pathmap.Mapper {
	return pathmap.New(s.ProjectsBase, s.MacProjectsBase)
}

// deferToQueue reports whether a mutation must be queued for later
// replay instead of applied to the workstation's registry.
func (s *Service) deferToQueue() bool {
	return s.Cache != nil && s.Offline != nil && s.Offline()
}

// queueOffline records a pending operation for the sync engine to
// replay once the workstation is back in scope.
func (s *Service) queueOffline(project, operation string, payload any) *Response {
	id, err := s.Cache.QueueOperation(project, operation, payload)
	if err != nil {
		return fail("queue %s: %v", operation, err)
	}
	return ok(fmt.Sprintf("workstation unreachable; queued %s for sync", operation), map[string]any{
		"operation_id": id,
		"operation":    operation,
	})
}

// workspaces builds the workspace manager for a loaded project.
func (s *Service) workspaces(path string, e *projectEntry) *workspace.Manager {
	return workspace.NewManager(path, e.cfg.Project.WorktreeBase, e.cfg.Project.MainBranch)
}
