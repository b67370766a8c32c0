package rpc

import (
	"context"

	"github.com/W1ndR1dr/flowforge/internal/merge"
)

func (s *Service) orchestrator(root string, e *projectEntry) *merge.Orchestrator {
	return merge.New(e.reg, s.workspaces(root, e), root, e.cfg.Project.MainBranch, e.cfg.Project.BuildCommand)
}

// MergeCheck probes merge cleanliness for one feature, or for every
// review feature in computed merge order when id is empty.
func (s *Service) MergeCheck(ctx context.Context, project, id string) *Response {
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}
	o := s.orchestrator(root, e)

	if id != "" {
		report, err := o.CheckConflicts(ctx, id)
		if err != nil {
			return fail("merge check %s: %v", id, err)
		}
		msg := id + " merges cleanly"
		if !report.Success {
			msg = id + " has conflicts"
		}
		return ok(msg, report)
	}

	order := o.ComputeMergeOrder()
	reports := make(map[string]*merge.ConflictReport, len(order))
	clean := 0
	for _, fid := range order {
		report, err := o.CheckConflicts(ctx, fid)
		if err != nil {
			return fail("merge check %s: %v", fid, err)
		}
		reports[fid] = report
		if report.Success {
			clean++
		}
	}
	return ok(plural(clean, "clean merge")+" of "+plural(len(order), "candidate"), map[string]any{
		"order":   order,
		"reports": reports,
	})
}

// Merge lands one feature, or every review feature in dependency order
// when id is empty.
func (s *Service) Merge(ctx context.Context, project, id string, validate, autoCleanup bool) *Response {
	root := s.projectPath(project)
	e, err := s.load(root)
	if err != nil {
		return fail("load project %s: %v", project, err)
	}
	o := s.orchestrator(root, e)
	defer s.Invalidate(root)

	if id != "" {
		res, err := o.Merge(ctx, id, validate, autoCleanup)
		if err != nil {
			return fail("merge %s: %v", id, err)
		}
		return &Response{Success: res.Success, Message: res.Message, Data: res}
	}

	results, err := o.MergeAllSafe(ctx, validate)
	if err != nil {
		return fail("merge all: %v", err)
	}
	merged := 0
	for _, r := range results {
		if r.Success {
			merged++
		}
	}
	resp := &Response{
		Success: merged == len(results),
		Message: plural(merged, "feature") + " merged",
		Data:    results,
	}
	if merged < len(results) {
		resp.Message += "; stopped at first failure"
	}
	return resp
}
