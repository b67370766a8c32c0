// Package registry is the authoritative record of features, their
// dependencies, statuses, and the merge queue for a project.
package registry

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a feature.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// IsValidStatus checks if s is a known feature status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusReview, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Complexity is a rough size estimate for a feature.
type Complexity string

const (
	ComplexitySmall  Complexity = "small"
	ComplexityMedium Complexity = "medium"
	ComplexityLarge  Complexity = "large"
	ComplexityEpic   Complexity = "epic"
)

// IsValidComplexity checks if c is a known complexity value.
func IsValidComplexity(c Complexity) bool {
	switch c {
	case ComplexitySmall, ComplexityMedium, ComplexityLarge, ComplexityEpic:
		return true
	}
	return false
}

// Feature is the unit of work tracked in the registry.
// Unknown optional fields in the serialized form are tolerated so newer
// writers don't break older readers.
type Feature struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    int        `json:"priority"`
	Complexity  Complexity `json:"complexity"`

	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`

	DependsOn []string `json:"depends_on,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`

	Branch        string `json:"branch,omitempty"`
	WorkspacePath string `json:"workspace_path,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	SpecPath   string   `json:"spec_path,omitempty"`
	PromptPath string   `json:"prompt_path,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// BranchName returns the canonical branch for a feature id.
func BranchName(id string) string {
	return "feature/" + id
}

// MergeQueueStatus is the state of a merge queue item.
type MergeQueueStatus string

const (
	MergePending    MergeQueueStatus = "pending"
	MergeValidating MergeQueueStatus = "validating"
	MergeReady      MergeQueueStatus = "ready"
	MergeConflict   MergeQueueStatus = "conflict"
	MergeMerged     MergeQueueStatus = "merged"
)

// MergeQueueItem tracks a feature through the merge pipeline.
type MergeQueueItem struct {
	FeatureID        string           `json:"feature_id"`
	QueuedAt         time.Time        `json:"queued_at"`
	Status           MergeQueueStatus `json:"status"`
	ValidationPassed bool             `json:"validation_passed"`
	ConflictFiles    []string         `json:"conflict_files,omitempty"`
}

// NotFoundError reports a missing feature.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("feature %q not found", e.ID)
}

// ValidationError reports an invalid mutation with the offending value.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// PlannedCapError reports a breach of the planned-feature cap.
// It carries the titles of the features currently in planned state so
// callers can surface them.
type PlannedCapError struct {
	Limit         int
	PlannedTitles []string
}

func (e *PlannedCapError) Error() string {
	return fmt.Sprintf("planned feature limit reached (%d): finish or ship one of %v first",
		e.Limit, e.PlannedTitles)
}

// CycleError reports a dependency cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Cycle)
}
