package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	id "ssot/pkg/domain"
)

// EventCategory classifies audit entries by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers decisions that change who is on record: submissions,
	// accept/merge outcomes and calibration changes. Tamper-proof, long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity that may be sampled.
	CategoryOperations EventCategory = "operations"
)

// Action names a state-changing operation recorded in the trail.
type Action string

const (
	ActionIdentitySubmitted      Action = "identity_submitted"
	ActionSubmissionAccepted     Action = "submission_accepted"
	ActionSubmissionMerged       Action = "submission_merged"
	ActionSubmissionRescored     Action = "submission_rescored"
	ActionCalibrationUpdated     Action = "calibration_updated"
	ActionCalibrationInitialized Action = "calibration_initialized"
)

var actionCategories = map[Action]EventCategory{
	ActionIdentitySubmitted:      CategoryCompliance,
	ActionSubmissionAccepted:     CategoryCompliance,
	ActionSubmissionMerged:       CategoryCompliance,
	ActionSubmissionRescored:     CategoryOperations,
	ActionCalibrationUpdated:     CategoryCompliance,
	ActionCalibrationInitialized: CategoryCompliance,
}

// Category returns the category for the action. Unknown actions are operations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// EntityType names the kind of record an entry is about.
type EntityType string

const (
	EntitySubmission  EntityType = "quarantined_submission"
	EntityMaster      EntityType = "master_identity"
	EntityCalibration EntityType = "calibration"
)

// Entry is one immutable record of a state change: who did what to which entity,
// with JSON snapshots of the state before and after.
type Entry struct {
	ID         id.AuditID    `json:"id"`
	Category   EventCategory `json:"category"`
	Timestamp  time.Time     `json:"timestamp"`
	Actor      string        `json:"actor"`
	Action     Action        `json:"action"`
	EntityType EntityType    `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	// RelatedID references a second entity touched by the same action, such as
	// the master identity a submission was merged into.
	RelatedID string          `json:"related_id,omitempty"`
	OldData   json.RawMessage `json:"old_data,omitempty"`
	NewData   json.RawMessage `json:"new_data,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Store persists entries. Implementations expose no update or delete path.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
}

// Snapshot marshals v for OldData/NewData. A nil v yields a nil snapshot.
func Snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit snapshot: %w", err)
	}
	return b, nil
}

// Touches reports whether the entry is about, or references, the given entity.
func (e Entry) Touches(entityType EntityType, entityID string) bool {
	if e.EntityType == entityType && e.EntityID == entityID {
		return true
	}
	return e.RelatedID != "" && e.RelatedID == entityID
}
