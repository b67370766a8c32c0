package registry

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultMaxPlanned is the shipping-machine cap on planned features.
const DefaultMaxPlanned = 3

// Registry holds a project's features and merge queue. It owns the on-disk
// document at <project>/.flowforge/registry.json; all saves are full-file
// rewrites after in-memory mutation. Not safe for concurrent use by
// multiple writers (the workstation runs one server in-process).
type Registry struct {
	doc        *Document
	store      *Store
	maxPlanned int
	now        func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxPlanned overrides the planned-feature cap.
func WithMaxPlanned(n int) Option {
	return func(r *Registry) { r.maxPlanned = n }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Open loads (or initializes) the registry for a project root.
func Open(projectRoot string, opts ...Option) (*Registry, error) {
	store := NewStore(projectRoot)
	doc, err := store.Load()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		doc:        doc,
		store:      store,
		maxPlanned: DefaultMaxPlanned,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewInMemory creates a registry with no backing file. Intended for tests
// and for the cache's mirrored documents.
func NewInMemory(opts ...Option) *Registry {
	r := &Registry{
		doc:        NewDocument(),
		maxPlanned: DefaultMaxPlanned,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Document returns the underlying document. Callers must not mutate it.
func (r *Registry) Document() *Document {
	return r.doc
}

func (r *Registry) save() error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(r.doc)
}

// AddOptions carries optional attributes for Add.
type AddOptions struct {
	Description string
	Priority    int
	Complexity  Complexity
	Parent      string
	DependsOn   []string
	Tags        []string
}

// Add creates a feature in state planned. The identifier is derived from
// the title; a clash or a planned-cap breach is a validation failure.
func (r *Registry) Add(title string, opts AddOptions) (*Feature, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &ValidationError{Field: "title", Value: title, Message: "must not be empty"}
	}
	id := GenerateID(title)
	if id == "" {
		return nil, &ValidationError{Field: "title", Value: title, Message: "yields an empty identifier"}
	}
	if _, ok := r.doc.Features[id]; ok {
		return nil, &ValidationError{Field: "id", Value: id, Message: "already exists"}
	}

	// The cap applies only to the planned status.
	if planned := r.plannedTitles(); len(planned) >= r.maxPlanned {
		return nil, &PlannedCapError{Limit: r.maxPlanned, PlannedTitles: planned}
	}

	if opts.Parent != "" {
		if _, ok := r.doc.Features[opts.Parent]; !ok {
			return nil, &NotFoundError{ID: opts.Parent}
		}
	}
	for _, dep := range opts.DependsOn {
		if dep == id {
			return nil, &ValidationError{Field: "depends_on", Value: dep, Message: "feature cannot depend on itself"}
		}
		if _, ok := r.doc.Features[dep]; !ok {
			return nil, &NotFoundError{ID: dep}
		}
	}

	complexity := opts.Complexity
	if complexity == "" {
		complexity = ComplexityMedium
	}
	if !IsValidComplexity(complexity) {
		return nil, &ValidationError{Field: "complexity", Value: string(complexity), Message: "unknown value"}
	}

	now := r.now().UTC()
	f := &Feature{
		ID:          id,
		Title:       title,
		Description: opts.Description,
		Status:      StatusPlanned,
		Priority:    opts.Priority,
		Complexity:  complexity,
		Parent:      opts.Parent,
		DependsOn:   append([]string(nil), opts.DependsOn...),
		Tags:        append([]string(nil), opts.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.doc.Features[id] = f

	if opts.Parent != "" {
		parent := r.doc.Features[opts.Parent]
		parent.Children = append(parent.Children, id)
	}

	if cycle := r.findCycle(); cycle != nil {
		r.unlink(f)
		return nil, &CycleError{Cycle: cycle}
	}

	if err := r.save(); err != nil {
		r.unlink(f)
		return nil, err
	}
	return f, nil
}

// unlink removes a feature and its parent's child reference, used to roll
// back a failed Add.
func (r *Registry) unlink(f *Feature) {
	delete(r.doc.Features, f.ID)
	if f.Parent != "" {
		if parent, ok := r.doc.Features[f.Parent]; ok {
			parent.Children = removeString(parent.Children, f.ID)
		}
	}
}

// Get returns a feature by id.
func (r *Registry) Get(id string) (*Feature, error) {
	f, ok := r.doc.Features[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return f, nil
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Title         *string
	Description   *string
	Status        *Status
	Priority      *int
	Complexity    *Complexity
	DependsOn     *[]string
	BlockedBy     *[]string
	Branch        *string
	WorkspacePath *string
	SpecPath      *string
	PromptPath    *string
	Tags          *[]string
	CompletedAt   *time.Time
}

// Update applies a patch to a feature and bumps its updated-at timestamp.
func (r *Registry) Update(id string, p Patch) (*Feature, error) {
	f, ok := r.doc.Features[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	prev := *f
	prevDeps := f.DependsOn

	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Status != nil {
		if !IsValidStatus(*p.Status) {
			*f = prev
			return nil, &ValidationError{Field: "status", Value: string(*p.Status), Message: "unknown value"}
		}
		f.Status = *p.Status
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.Complexity != nil {
		if !IsValidComplexity(*p.Complexity) {
			*f = prev
			return nil, &ValidationError{Field: "complexity", Value: string(*p.Complexity), Message: "unknown value"}
		}
		f.Complexity = *p.Complexity
	}
	if p.DependsOn != nil {
		for _, dep := range *p.DependsOn {
			if dep == id {
				*f = prev
				return nil, &ValidationError{Field: "depends_on", Value: dep, Message: "feature cannot depend on itself"}
			}
			if _, ok := r.doc.Features[dep]; !ok {
				*f = prev
				return nil, &NotFoundError{ID: dep}
			}
		}
		f.DependsOn = append([]string(nil), (*p.DependsOn)...)
	}
	if p.BlockedBy != nil {
		f.BlockedBy = append([]string(nil), (*p.BlockedBy)...)
	}
	if p.Branch != nil {
		f.Branch = *p.Branch
	}
	if p.WorkspacePath != nil {
		f.WorkspacePath = *p.WorkspacePath
	}
	if p.SpecPath != nil {
		f.SpecPath = *p.SpecPath
	}
	if p.PromptPath != nil {
		f.PromptPath = *p.PromptPath
	}
	if p.Tags != nil {
		f.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.CompletedAt != nil {
		f.CompletedAt = p.CompletedAt
	}

	if p.DependsOn != nil {
		if cycle := r.findCycle(); cycle != nil {
			f.DependsOn = prevDeps
			return nil, &CycleError{Cycle: cycle}
		}
	}

	// Planned and blocked features carry no implementation state.
	if f.Status == StatusPlanned || f.Status == StatusBlocked {
		f.Branch = ""
		f.WorkspacePath = ""
	}

	f.UpdatedAt = r.now().UTC()
	if err := r.save(); err != nil {
		*f = prev
		return nil, err
	}
	return f, nil
}

// Remove deletes a feature. It refuses when the feature has children or is
// in-progress, unless force is set.
func (r *Registry) Remove(id string, force bool) error {
	f, ok := r.doc.Features[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if !force {
		if len(f.Children) > 0 {
			return &ValidationError{Field: "id", Value: id,
				Message: fmt.Sprintf("has %d children; remove them first or use force", len(f.Children))}
		}
		if f.Status == StatusInProgress {
			return &ValidationError{Field: "id", Value: id, Message: "is in-progress; stop it first or use force"}
		}
	}

	delete(r.doc.Features, id)
	if f.Parent != "" {
		if parent, ok := r.doc.Features[f.Parent]; ok {
			parent.Children = removeString(parent.Children, id)
		}
	}
	// Drop dangling dependency references.
	for _, other := range r.doc.Features {
		other.DependsOn = removeString(other.DependsOn, id)
		other.BlockedBy = removeString(other.BlockedBy, id)
	}
	r.doc.MergeQueue = removeQueueItem(r.doc.MergeQueue, id)

	return r.save()
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status Status
	Parent string
	Tag    string
}

// List returns features matching the filter, ordered by priority then id.
func (r *Registry) List(filter ListFilter) []*Feature {
	var out []*Feature
	for _, f := range r.doc.Features {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.Parent != "" && f.Parent != filter.Parent {
			continue
		}
		if filter.Tag != "" && !containsString(f.Tags, filter.Tag) {
			continue
		}
		out = append(out, f)
	}
	sortFeatures(out)
	return out
}

// GetRoots returns features with no parent.
func (r *Registry) GetRoots() []*Feature {
	var out []*Feature
	for _, f := range r.doc.Features {
		if f.Parent == "" {
			out = append(out, f)
		}
	}
	sortFeatures(out)
	return out
}

// GetChildren returns the direct children of a feature in their stored order.
func (r *Registry) GetChildren(id string) ([]*Feature, error) {
	f, ok := r.doc.Features[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	out := make([]*Feature, 0, len(f.Children))
	for _, child := range f.Children {
		if c, ok := r.doc.Features[child]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetReady returns planned features whose dependencies are all completed
// and whose blocked list is empty.
func (r *Registry) GetReady() []*Feature {
	var out []*Feature
	for _, f := range r.doc.Features {
		if f.Status != StatusPlanned || len(f.BlockedBy) > 0 {
			continue
		}
		ready := true
		for _, dep := range f.DependsOn {
			d, ok := r.doc.Features[dep]
			if !ok || d.Status != StatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, f)
		}
	}
	sortFeatures(out)
	return out
}

// GetMergeCandidates returns features in review.
func (r *Registry) GetMergeCandidates() []*Feature {
	return r.List(ListFilter{Status: StatusReview})
}

// Stats summarizes feature counts per status.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"by_status"`
	QueueDepth int            `json:"merge_queue_depth"`
}

// GetStats computes registry statistics.
func (r *Registry) GetStats() Stats {
	s := Stats{
		Total:      len(r.doc.Features),
		ByStatus:   make(map[Status]int),
		QueueDepth: len(r.doc.MergeQueue),
	}
	for _, f := range r.doc.Features {
		s.ByStatus[f.Status]++
	}
	return s
}

// EnqueueMerge appends a merge queue item for a feature.
func (r *Registry) EnqueueMerge(id string) error {
	if _, ok := r.doc.Features[id]; !ok {
		return &NotFoundError{ID: id}
	}
	r.doc.MergeQueue = append(r.doc.MergeQueue, MergeQueueItem{
		FeatureID: id,
		QueuedAt:  r.now().UTC(),
		Status:    MergePending,
	})
	return r.save()
}

// UpdateMergeItem mutates the queue item for a feature in place.
func (r *Registry) UpdateMergeItem(id string, fn func(*MergeQueueItem)) error {
	for i := range r.doc.MergeQueue {
		if r.doc.MergeQueue[i].FeatureID == id {
			fn(&r.doc.MergeQueue[i])
			return r.save()
		}
	}
	return &NotFoundError{ID: id}
}

func (r *Registry) plannedTitles() []string {
	var titles []string
	for _, f := range r.doc.Features {
		if f.Status == StatusPlanned {
			titles = append(titles, f.Title)
		}
	}
	sort.Strings(titles)
	return titles
}

// findCycle runs a DFS over the dependency graph and returns a cycle path,
// or nil when the graph is acyclic.
func (r *Registry) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.doc.Features))
	parent := make(map[string]string)

	var cycle []string
	var dfs func(string) bool
	dfs = func(id string) bool {
		color[id] = gray
		deps := append([]string(nil), r.doc.Features[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := r.doc.Features[dep]; !ok {
				continue
			}
			switch color[dep] {
			case gray:
				cycle = []string{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append(cycle, dep)
				return true
			case white:
				parent[dep] = id
				if dfs(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(r.doc.Features))
	for id := range r.doc.Features {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

func sortFeatures(fs []*Feature) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Priority != fs[j].Priority {
			return fs[i].Priority < fs[j].Priority
		}
		return fs[i].ID < fs[j].ID
	})
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeQueueItem(queue []MergeQueueItem, id string) []MergeQueueItem {
	out := queue[:0]
	for _, item := range queue {
		if item.FeatureID != id {
			out = append(out, item)
		}
	}
	return out
}
