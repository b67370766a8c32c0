package rpc

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/executor"
	"github.com/W1ndR1dr/flowforge/internal/registry"
	"github.com/W1ndR1dr/flowforge/internal/syncengine"
)

// ListFeatures returns a project's features, optionally filtered by
// status and tag.
func (s *Service) ListFeatures(ctx context.Context, project, status, tag string) *Response {
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}
	features := e.reg.List(registry.ListFilter{Status: registry.Status(status), Tag: tag})
	return ok(plural(len(features), "feature"), features)
}

// AddFeatureArgs are the optional attributes for AddFeature.
type AddFeatureArgs struct {
	Description string
	Priority    int
	Complexity  string
	Parent      string
	DependsOn   []string
	Tags        []string
}

// AddFeature creates a planned feature. While the workstation is out of
// scope the mutation is queued for replay instead.
func (s *Service) AddFeature(ctx context.Context, project, title string, args AddFeatureArgs) *Response {
	if s.deferToQueue() {
		return s.queueOffline(project, cache.OpAddFeature, syncengine.AddFeaturePayload{
			Title:       title,
			Description: args.Description,
			Priority:    args.Priority,
			Complexity:  args.Complexity,
			DependsOn:   args.DependsOn,
			Tags:        args.Tags,
		})
	}
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}
	f, err := e.reg.Add(title, registry.AddOptions{
		Description: args.Description,
		Priority:    args.Priority,
		Complexity:  registry.Complexity(args.Complexity),
		Parent:      args.Parent,
		DependsOn:   args.DependsOn,
		Tags:        args.Tags,
	})
	if err != nil {
		return fail("add feature: %v", err)
	}
	s.Invalidate(root)
	return ok("added feature "+f.ID, f)
}

// UpdateFeature applies field updates to a feature. Recognized fields:
// title, description, status, priority, complexity, tags (comma list).
func (s *Service) UpdateFeature(ctx context.Context, project, id string, fields map[string]string) *Response {
	if s.deferToQueue() {
		return s.queueOffline(project, cache.OpUpdateFeature, syncengine.UpdateFeaturePayload{
			ID:     id,
			Fields: fields,
		})
	}
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}

	var patch registry.Patch
	for k, v := range fields {
		switch k {
		case "title":
			patch.Title = &v
		case "description":
			patch.Description = &v
		case "status":
			st := registry.Status(v)
			patch.Status = &st
		case "priority":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fail("invalid priority %q", v)
			}
			patch.Priority = &n
		case "complexity":
			c := registry.Complexity(v)
			patch.Complexity = &c
		case "tags":
			tags := splitList(v)
			patch.Tags = &tags
		default:
			return fail("unknown field %q", k)
		}
	}

	f, err := e.reg.Update(id, patch)
	if err != nil {
		return fail("update feature: %v", err)
	}
	s.Invalidate(root)
	return ok("updated feature "+id, f)
}

// DeleteFeature removes a feature. Without force, features with children
// or in progress are refused.
func (s *Service) DeleteFeature(ctx context.Context, project, id string, force bool) *Response {
	if s.deferToQueue() {
		return s.queueOffline(project, cache.OpDeleteFeature, syncengine.DeleteFeaturePayload{ID: id})
	}
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}
	if err := e.reg.Remove(id, force); err != nil {
		return fail("delete feature: %v", err)
	}
	s.Invalidate(root)
	return ok("deleted feature "+id, nil)
}

// StartFeature creates the feature's workspace, writes its prompt, moves
// it to in-progress, and hands it to the executor.
func (s *Service) StartFeature(ctx context.Context, project, id string) *Response {
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}
	f, err := e.reg.Get(id)
	if err != nil {
		return fail("start feature: %v", err)
	}
	if f.Status == registry.StatusInProgress {
		return fail("feature %s is already in progress", id)
	}

	execProject := executor.Project{
		Name:   e.cfg.Project.Name,
		Root:   root,
		Config: e.cfg,
	}

	var wsPath string
	if s.Transport != nil {
		// The implementation runs in the workstation's checkout; the
		// executor creates the remote worktree if it is missing.
		execProject.Transport = s.Transport
		execProject.RemoteRoot = s.pathMapper().PiToMac(root)
		wsPath = path.Join(execProject.RemoteRoot, e.cfg.Project.WorktreeBase, id)
	} else {
		ws := s.workspaces(root, e)
		wsPath = ws.Path(id)
		if _, err := os.Stat(wsPath); err != nil {
			if _, err := ws.Create(ctx, id, ""); err != nil {
				return fail("create workspace: %v", err)
			}
		}
	}

	specText := s.specText(root, f)
	prompt := executor.BuildPrompt(e.cfg.Project.Name, id, specText, e.cfg.Project.DefaultPersona)
	promptPath := filepath.Join(root, registry.Dir, "prompts", id+".md")
	if err := os.MkdirAll(filepath.Dir(promptPath), 0o755); err != nil {
		return fail("write prompt: %v", err)
	}
	if err := os.WriteFile(promptPath, []byte(prompt), 0o644); err != nil {
		return fail("write prompt: %v", err)
	}

	status := registry.StatusInProgress
	branch := registry.BranchName(id)
	if _, err := e.reg.Update(id, registry.Patch{
		Status:        &status,
		Branch:        &branch,
		WorkspacePath: &wsPath,
		PromptPath:    &promptPath,
	}); err != nil {
		return fail("mark in-progress: %v", err)
	}
	s.Invalidate(root)

	message := "started feature " + id
	if s.Executor != nil {
		progress := s.Executor.ExecuteFeature(ctx, executor.Request{
			FeatureID: id,
			Spec:      specText,
			Project:   execProject,
		})
		go drainProgress(project, progress)
		message += "; execution dispatched"
	}
	return ok(message, map[string]any{
		"feature_id":     id,
		"branch":         branch,
		"workspace_path": wsPath,
		"prompt_path":    promptPath,
	})
}

// StopFeature cancels a running execution and moves the feature to
// review, keeping its branch and workspace so the partial work can be
// inspected and resumed.
func (s *Service) StopFeature(ctx context.Context, project, id string) *Response {
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}
	f, err := e.reg.Get(id)
	if err != nil {
		return fail("stop feature: %v", err)
	}

	cancelled := false
	if s.Executor != nil {
		cancelled = s.Executor.Cancel(id)
	}
	if !cancelled && f.Status != registry.StatusInProgress {
		return fail("feature %s is not running", id)
	}

	status := registry.StatusReview
	if _, err := e.reg.Update(id, registry.Patch{Status: &status}); err != nil {
		return fail("mark review: %v", err)
	}
	s.Invalidate(root)

	message := "stopped feature " + id + "; moved to review"
	if cancelled {
		message += " (execution killed)"
	}
	return ok(message, nil)
}

// specText prefers the feature's spec file, falling back to its
// description. Absolute spec paths may be in the workstation namespace
// when the registry was synced from there.
func (s *Service) specText(root string, f *registry.Feature) string {
	if f.SpecPath != "" {
		specPath := f.SpecPath
		if filepath.IsAbs(specPath) {
			specPath = s.pathMapper().MacToPi(specPath)
		} else {
			specPath = filepath.Join(root, specPath)
		}
		if data, err := os.ReadFile(specPath); err == nil {
			return string(data)
		}
	}
	return f.Description
}

// drainProgress consumes an execution's stream, logging the terminal
// record. The tool call has already returned by the time these arrive.
func drainProgress(project string, progress <-chan executor.Progress) {
	var last executor.Progress
	for p := range progress {
		last = p
	}
	if last.State != "" {
		log.Printf("execution %s/%s finished: %s (%s)", project, last.FeatureID, last.State, last.Message)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
