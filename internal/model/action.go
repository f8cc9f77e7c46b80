package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionKind identifies the mutation an agent action proposes.
type ActionKind string

const (
	ActionStatusNormalization  ActionKind = "status_normalization"
	ActionSyncRetry            ActionKind = "sync_retry"
	ActionDedupMetadata        ActionKind = "dedup_metadata"
	ActionArchiveRecord        ActionKind = "archive_record"
	ActionShareLinkChange      ActionKind = "share_link_change"
	ActionExportGeneration     ActionKind = "export_generation"
	ActionBulkStatusTransition ActionKind = "bulk_status_transition"
)

// ActionKinds lists every known action kind in a stable order.
var ActionKinds = []ActionKind{
	ActionStatusNormalization,
	ActionSyncRetry,
	ActionDedupMetadata,
	ActionArchiveRecord,
	ActionShareLinkChange,
	ActionExportGeneration,
	ActionBulkStatusTransition,
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SafetyClass is the risk tier assigned to an action kind.
type SafetyClass string

const (
	SafetySafe      SafetyClass = "safe"
	SafetyDangerous SafetyClass = "dangerous"
)

// ActionType is the audited verb of a mutation.
type ActionType string

const (
	ActionTypeCreate          ActionType = "create"
	ActionTypeUpdate          ActionType = "update"
	ActionTypeArchive         ActionType = "archive"
	ActionTypeExport          ActionType = "export"
	ActionTypeShare           ActionType = "share"
	ActionTypePropose         ActionType = "propose"
	ActionTypeApply           ActionType = "apply"
	ActionTypeUndo            ActionType = "undo"
	ActionTypeResolveConflict ActionType = "resolveConflict"
)

// EntityType names a persisted record kind.
type EntityType string

const (
	EntityStudent             EntityType = "student"
	EntityOrganization        EntityType = "organization"
	EntityServiceEntry        EntityType = "serviceEntry"
	EntityEvidenceAsset       EntityType = "evidenceAsset"
	EntityVerificationRequest EntityType = "verificationRequest"
	EntityExportJob           EntityType = "exportJob"
	EntityShareLink           EntityType = "shareLink"
	EntitySyncQueueItem       EntityType = "syncQueueItem"
	EntitySyncConflict        EntityType = "syncConflict"
	EntityAgentRun            EntityType = "agentRun"
	EntityAgentAction         EntityType = "agentAction"
	EntityStateSnapshot       EntityType = "stateSnapshot"
	EntityAuditEvent          EntityType = "auditEvent"
)

// EntityTypes lists every known entity type.
var EntityTypes = []EntityType{
	EntityStudent,
	EntityOrganization,
	EntityServiceEntry,
	EntityEvidenceAsset,
	EntityVerificationRequest,
	EntityExportJob,
	EntityShareLink,
	EntitySyncQueueItem,
	EntitySyncConflict,
	EntityAgentRun,
	EntityAgentAction,
	EntityStateSnapshot,
	EntityAuditEvent,
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if e == known {
			return true
		}
	}
	return false
}

// AgentAction is a single proposed mutation produced by a run.
// Once AppliedAt is set it is never cleared.
type AgentAction struct {
	ID           uuid.UUID       `json:"id"`
	RunID        uuid.UUID       `json:"run_id"`
	ActionType   ActionType      `json:"action_type"`
	ActionKind   ActionKind      `json:"action_kind"`
	SafetyClass  SafetyClass     `json:"safety_class"`
	TargetEntity EntityType      `json:"target_entity"`
	TargetID     uuid.UUID       `json:"target_id"`
	Title        string          `json:"title"`
	Detail       string          `json:"detail"`
	Diff         json.RawMessage `json:"diff"`
	Approved     bool            `json:"approved"`
	AppliedAt    *time.Time      `json:"applied_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Applied reports whether the action has already been applied.
func (a AgentAction) Applied() bool { return a.AppliedAt != nil }

// StateSnapshot records which actions one apply batch changed.
type StateSnapshot struct {
	ID        uuid.UUID    `json:"id"`
	StudentID uuid.UUID    `json:"student_id"`
	BatchID   uuid.UUID    `json:"batch_id"`
	Data      SnapshotData `json:"snapshot"`
	CreatedAt time.Time    `json:"created_at"`
}

// SnapshotData is the persisted body of a StateSnapshot.
type SnapshotData struct {
	ActionIDs []uuid.UUID `json:"actionIds"`
	At        time.Time   `json:"at"`
}
