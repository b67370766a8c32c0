// Package syncengine reconciles the local cache with the workstation's
// authoritative registries: a periodic health probe plus a sync loop
// that replays queued operations when the workstation is reachable.
package syncengine

import (
	"context"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/config"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/remote"
)

// Default cadence for the engine's two periodic tasks.
const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultSyncInterval  = 60 * time.Second
)

// Workstation is the transport slice the engine needs. Satisfied by
// *remote.Transport.
type Workstation interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Reachable(ctx context.Context, timeout time.Duration) bool
}

// Engine owns the health probe and the sync loop. The two tasks share
// taskMu so a probe never observes a half-finished sync pass.
type Engine struct {
	Workstation Workstation
	Cache       *cache.DB
	Replayer    Replayer

	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	SyncInterval  time.Duration

	// OnReachabilityChange fires once per transition between reachable
	// and unreachable, never on repeated identical probe outcomes.
	OnReachabilityChange func(reachable bool)

	taskMu sync.Mutex

	stateMu   sync.Mutex
	reachable bool
	probed    bool
}

// NewEngine creates an engine with default cadence, replaying queued
// operations through the workstation's CLI.
func NewEngine(t *remote.Transport, db *cache.DB) *Engine {
	return &Engine{
		Workstation:   t,
		Cache:         db,
		Replayer:      &CLIReplayer{Transport: t},
		ProbeInterval: DefaultProbeInterval,
		ProbeTimeout:  DefaultProbeTimeout,
		SyncInterval:  DefaultSyncInterval,
	}
}

// Run drives both periodic tasks until the context is cancelled. A probe
// runs immediately so the first sync tick has a reachability verdict.
func (e *Engine) Run(ctx context.Context) {
	e.Probe(ctx)

	probeTicker := time.NewTicker(e.ProbeInterval)
	defer probeTicker.Stop()
	syncTicker := time.NewTicker(e.SyncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-probeTicker.C:
			e.Probe(ctx)
		case <-syncTicker.C:
			e.syncTick(ctx)
		}
	}
}

// Probe runs a tiny no-op command on the workstation under the probe
// ceiling and updates the reachability verdict. A timeout is
// indistinguishable from "unreachable".
func (e *Engine) Probe(ctx context.Context) bool {
	e.taskMu.Lock()
	reachable := e.Workstation.Reachable(ctx, e.ProbeTimeout)
	e.taskMu.Unlock()

	e.stateMu.Lock()
	changed := !e.probed || reachable != e.reachable
	e.reachable = reachable
	e.probed = true
	callback := e.OnReachabilityChange
	e.stateMu.Unlock()

	if changed && callback != nil {
		callback(reachable)
	}
	return reachable
}

// Reachable returns the last probe's verdict.
func (e *Engine) Reachable() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.reachable
}

func (e *Engine) syncTick(ctx context.Context) {
	if !e.Reachable() {
		return
	}
	pending, err := e.Cache.GetPending("")
	if err != nil {
		log.Printf("warning: sync tick: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	if _, err := e.SyncAllProjects(ctx); err != nil {
		log.Printf("warning: sync pass: %v", err)
	}
}

// SyncResult is the outcome of one project's sync pass.
type SyncResult struct {
	ProjectName  string     `json:"project_name"`
	Replayed     int        `json:"replayed"`
	Failed       int        `json:"failed"`
	Conflicts    []Conflict `json:"conflicts,omitempty"`
	RegistryHash string     `json:"registry_hash"`
	Status       string     `json:"status"`
}

// SyncAllProjects syncs every cached project. One project's failure does
// not block the others.
func (e *Engine) SyncAllProjects(ctx context.Context) ([]*SyncResult, error) {
	projects, err := e.Cache.ListProjects()
	if err != nil {
		return nil, err
	}
	var results []*SyncResult
	for _, p := range projects {
		res, err := e.SyncProject(ctx, p.Name, p.Path)
		if err != nil {
			log.Printf("warning: sync %s: %v", p.Name, err)
			_ = e.Cache.UpdateSyncState(p.Name, "", cache.SyncOffline)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// SyncProject reconciles one project: read the authoritative registry,
// detect conflicts against queued local mutations, replay the queue in
// creation order, then re-cache and record the new registry hash.
func (e *Engine) SyncProject(ctx context.Context, name, projectPath string) (*SyncResult, error) {
	e.taskMu.Lock()
	defer e.taskMu.Unlock()

	registryPath := path.Join(projectPath, registry.Dir, registry.FileName)
	data, err := e.Workstation.ReadFile(ctx, registryPath)
	if err != nil {
		return nil, fmt.Errorf("read workstation registry: %w", err)
	}
	remoteDoc, err := registry.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse workstation registry: %w", err)
	}
	hash, err := cache.RegistryHash(data)
	if err != nil {
		return nil, err
	}

	state, err := e.Cache.GetSyncState(name)
	if err != nil {
		return nil, err
	}
	pending, err := e.Cache.GetPending(name)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{ProjectName: name}

	// The workstation moved since we last saw it and we hold local
	// mutations: record conflicts. They are not auto-resolved.
	if hash != state.LastMacRegistryHash && len(pending) > 0 {
		result.Conflicts = e.detectConflicts(name, remoteDoc, pending)
	}

	// An add whose title already exists on the workstation must not be
	// replayed: it would either fail there or mint a second feature.
	duplicates := make(map[int64]string)
	for _, c := range result.Conflicts {
		if c.Type == ConflictDuplicate {
			duplicates[c.OperationID] = c.FeatureID
		}
	}

	for _, op := range pending {
		if featureID, dup := duplicates[op.ID]; dup {
			reason := fmt.Sprintf("duplicate of workstation feature %s", featureID)
			if err := e.Cache.MarkOperationFailed(op.ID, reason); err != nil {
				return nil, err
			}
			result.Failed++
			continue
		}
		if err := e.Cache.MarkOperationSyncing(op.ID); err != nil {
			return nil, err
		}
		if err := e.Replayer.Replay(ctx, projectPath, op); err != nil {
			// A failed op does not block later ops.
			if markErr := e.Cache.MarkOperationFailed(op.ID, err.Error()); markErr != nil {
				return nil, markErr
			}
			result.Failed++
			continue
		}
		if err := e.Cache.MarkOperationCompleted(op.ID); err != nil {
			return nil, err
		}
		result.Replayed++
	}

	// Replay changed the registry; re-read before caching.
	data, err = e.Workstation.ReadFile(ctx, registryPath)
	if err != nil {
		return nil, fmt.Errorf("re-read workstation registry: %w", err)
	}
	hash, err = cache.RegistryHash(data)
	if err != nil {
		return nil, err
	}
	configJSON, err := e.Workstation.ReadFile(ctx, path.Join(projectPath, registry.Dir, config.FileName))
	if err != nil {
		configJSON = nil
	}
	if err := e.Cache.CacheProject(name, projectPath, configJSON, data); err != nil {
		return nil, err
	}

	result.RegistryHash = hash
	result.Status = cache.SyncSynced
	if len(result.Conflicts) > 0 {
		result.Status = cache.SyncConflict
	}
	if err := e.Cache.UpdateSyncState(name, hash, result.Status); err != nil {
		return nil, err
	}
	return result, nil
}
