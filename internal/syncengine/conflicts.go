package syncengine

import (
	"log"
	"reflect"
	"strings"

	"github.com/W1ndR1dr/flowforge/internal/cache"
	"github.com/W1ndR1dr/flowforge/internal/registry"
)

// Conflict types.
const (
	ConflictUpdate    = "update_conflict"
	ConflictDuplicate = "duplicate_feature"
)

// updateResolution documents the fixed policy for concurrent updates.
// The conflict is recorded; replay still runs.
const updateResolution = "local wins for user-authored fields (title, description, tags); " +
	"workstation wins for system fields (status, branch, workspace path)"

// Conflict records a queued local mutation that collides with a change
// the workstation made independently.
type Conflict struct {
	Type        string `json:"type"`
	FeatureID   string `json:"feature_id,omitempty"`
	Title       string `json:"title,omitempty"`
	OperationID int64  `json:"operation_id"`
	Resolution  string `json:"resolution"`
}

// detectConflicts compares each queued operation with the workstation's
// current registry and the locally cached snapshot.
func (e *Engine) detectConflicts(projectName string, remoteDoc *registry.Document, pending []*cache.PendingOperation) []Conflict {
	var conflicts []Conflict
	for _, op := range pending {
		switch op.Operation {
		case cache.OpUpdateFeature:
			var payload UpdateFeaturePayload
			if err := op.Payload(&payload); err != nil {
				log.Printf("warning: undecodable payload for operation %d: %v", op.ID, err)
				continue
			}
			remoteFeature, ok := remoteDoc.Features[payload.ID]
			if !ok {
				continue
			}
			cached, err := e.Cache.GetFeature(projectName, payload.ID)
			if err != nil || cached == nil {
				continue
			}
			// The workstation's copy drifted from our snapshot: both
			// sides touched this feature.
			if !reflect.DeepEqual(cached, remoteFeature) {
				conflicts = append(conflicts, Conflict{
					Type:        ConflictUpdate,
					FeatureID:   payload.ID,
					OperationID: op.ID,
					Resolution:  updateResolution,
				})
			}

		case cache.OpAddFeature:
			var payload AddFeaturePayload
			if err := op.Payload(&payload); err != nil {
				log.Printf("warning: undecodable payload for operation %d: %v", op.ID, err)
				continue
			}
			for id, f := range remoteDoc.Features {
				if strings.EqualFold(f.Title, payload.Title) {
					conflicts = append(conflicts, Conflict{
						Type:        ConflictDuplicate,
						FeatureID:   id,
						Title:       payload.Title,
						OperationID: op.ID,
						Resolution:  "feature already exists on the workstation; no merge performed",
					})
					break
				}
			}
		}
	}
	return conflicts
}
