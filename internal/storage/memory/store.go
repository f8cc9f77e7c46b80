package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
)

// Autocommitted forms of the view methods.

func (s *Store) GetStateForStudent(ctx context.Context, studentID uuid.UUID) (state model.DomainState, err error) {
	err = s.locked(func(v view) error {
		state, err = v.GetStateForStudent(ctx, studentID)
		return err
	})
	return state, err
}

func (s *Store) SetEntryStatus(ctx context.Context, studentID, entryID uuid.UUID, status model.EntryStatus, rejectReason *string, at time.Time) error {
	return s.locked(func(v view) error { return v.SetEntryStatus(ctx, studentID, entryID, status, rejectReason, at) })
}

func (s *Store) RevokeShareLink(ctx context.Context, studentID, linkID uuid.UUID, at time.Time) error {
	return s.locked(func(v view) error { return v.RevokeShareLink(ctx, studentID, linkID, at) })
}

func (s *Store) SetSyncItemStatus(ctx context.Context, studentID, itemID uuid.UUID, status model.SyncState, at time.Time) error {
	return s.locked(func(v view) error { return v.SetSyncItemStatus(ctx, studentID, itemID, status, at) })
}

func (s *Store) RecordSyncFailure(ctx context.Context, studentID, itemID uuid.UUID, errText string, at time.Time) error {
	return s.locked(func(v view) error { return v.RecordSyncFailure(ctx, studentID, itemID, errText, at) })
}

func (s *Store) ResolveSyncConflict(ctx context.Context, studentID, itemID uuid.UUID, resolution json.RawMessage, at time.Time) (it model.SyncQueueItem, err error) {
	err = s.locked(func(v view) error {
		it, err = v.ResolveSyncConflict(ctx, studentID, itemID, resolution, at)
		return err
	})
	return it, err
}

func (s *Store) CreateRun(ctx context.Context, run model.AgentRun) error {
	return s.locked(func(v view) error { return v.CreateRun(ctx, run) })
}

func (s *Store) GetRun(ctx context.Context, studentID, runID uuid.UUID) (run model.AgentRun, err error) {
	err = s.locked(func(v view) error {
		run, err = v.GetRun(ctx, studentID, runID)
		return err
	})
	return run, err
}

func (s *Store) ListRuns(ctx context.Context, studentID uuid.UUID, limit, offset int) (runs []model.AgentRun, err error) {
	err = s.locked(func(v view) error {
		runs, err = v.ListRuns(ctx, studentID, limit, offset)
		return err
	})
	return runs, err
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID uuid.UUID, status model.RunStatus, at time.Time) error {
	return s.locked(func(v view) error { return v.UpdateRunStatus(ctx, runID, status, at) })
}

func (s *Store) CreateActions(ctx context.Context, actions []model.AgentAction) error {
	return s.locked(func(v view) error { return v.CreateActions(ctx, actions) })
}

func (s *Store) ListActionsByRun(ctx context.Context, runID uuid.UUID) (actions []model.AgentAction, err error) {
	err = s.locked(func(v view) error {
		actions, err = v.ListActionsByRun(ctx, runID)
		return err
	})
	return actions, err
}

func (s *Store) MarkActionApplied(ctx context.Context, actionID uuid.UUID, at time.Time) error {
	return s.locked(func(v view) error { return v.MarkActionApplied(ctx, actionID, at) })
}

func (s *Store) CreateSnapshot(ctx context.Context, snap model.StateSnapshot) error {
	return s.locked(func(v view) error { return v.CreateSnapshot(ctx, snap) })
}

func (s *Store) GetSnapshot(ctx context.Context, studentID, snapshotID uuid.UUID) (snap model.StateSnapshot, err error) {
	err = s.locked(func(v view) error {
		snap, err = v.GetSnapshot(ctx, studentID, snapshotID)
		return err
	})
	return snap, err
}

func (s *Store) InsertAuditEvent(ctx context.Context, e model.AuditEvent) error {
	return s.locked(func(v view) error { return v.InsertAuditEvent(ctx, e) })
}

func (s *Store) ListAuditEvents(ctx context.Context, studentID uuid.UUID, f model.AuditFilter) (events []model.AuditEvent, err error) {
	err = s.locked(func(v view) error {
		events, err = v.ListAuditEvents(ctx, studentID, f)
		return err
	})
	return events, err
}
