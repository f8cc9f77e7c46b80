package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
)

// StateReader reads the domain records the agent may act on.
type StateReader interface {
	// GetStateForStudent returns the student's organizations, entries, sync
	// queue and share links, newest first. Archived records are excluded.
	GetStateForStudent(ctx context.Context, studentID uuid.UUID) (model.DomainState, error)
}

// Mutator applies tenant-scoped domain updates. Every method returns
// ErrNotFound when the target does not exist for the given student.
type Mutator interface {
	SetEntryStatus(ctx context.Context, studentID, entryID uuid.UUID, status model.EntryStatus, rejectReason *string, at time.Time) error
	RevokeShareLink(ctx context.Context, studentID, linkID uuid.UUID, at time.Time) error
	SetSyncItemStatus(ctx context.Context, studentID, itemID uuid.UUID, status model.SyncState, at time.Time) error
	// RecordSyncFailure marks the item Failed, stores errText and increments
	// its retry count.
	RecordSyncFailure(ctx context.Context, studentID, itemID uuid.UUID, errText string, at time.Time) error
	// ResolveSyncConflict replaces a Conflict item's payload with resolution
	// and requeues it with a clean retry count. It returns ErrNotInConflict
	// when the item exists but is in any other state.
	ResolveSyncConflict(ctx context.Context, studentID, itemID uuid.UUID, resolution json.RawMessage, at time.Time) (model.SyncQueueItem, error)
}

// Ledger persists agent runs, their actions and apply snapshots.
type Ledger interface {
	CreateRun(ctx context.Context, run model.AgentRun) error
	GetRun(ctx context.Context, studentID, runID uuid.UUID) (model.AgentRun, error)
	ListRuns(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]model.AgentRun, error)
	UpdateRunStatus(ctx context.Context, runID uuid.UUID, status model.RunStatus, at time.Time) error
	CreateActions(ctx context.Context, actions []model.AgentAction) error
	ListActionsByRun(ctx context.Context, runID uuid.UUID) ([]model.AgentAction, error)
	// MarkActionApplied sets approved, applied_at and action_type=apply.
	// It returns ErrAlreadyApplied if the action was applied before.
	MarkActionApplied(ctx context.Context, actionID uuid.UUID, at time.Time) error
	CreateSnapshot(ctx context.Context, snap model.StateSnapshot) error
	GetSnapshot(ctx context.Context, studentID, snapshotID uuid.UUID) (model.StateSnapshot, error)
}

// AuditLog is the append-only audit trail.
type AuditLog interface {
	InsertAuditEvent(ctx context.Context, e model.AuditEvent) error
	ListAuditEvents(ctx context.Context, studentID uuid.UUID, f model.AuditFilter) ([]model.AuditEvent, error)
}

// Tx is the store as seen from inside a transaction.
type Tx interface {
	StateReader
	Mutator
	Ledger
	AuditLog
}

// Store is a transactional repository. Calls made directly on a Store are
// autocommitted; calls made on the Tx passed to InTx commit together.
type Store interface {
	Tx

	// InTx runs fn in a serializable transaction that holds the student's
	// write lock. Writes made through tx are visible outside only if fn
	// returns nil. fn may run more than once when the backend retries a
	// serialization failure, so it must not leak partial results.
	InTx(ctx context.Context, studentID uuid.UUID, fn func(tx Tx) error) error

	// ListActiveStudents returns approved students, most recently updated first.
	ListActiveStudents(ctx context.Context, limit int) ([]model.Student, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context)
}
