package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
)

// view implements storage.Tx over a dataset. Callers hold the store lock.
type view struct {
	d *dataset
}

var _ storage.Tx = view{}

func (v view) GetStateForStudent(_ context.Context, studentID uuid.UUID) (model.DomainState, error) {
	state := model.DomainState{StudentID: studentID}
	for _, o := range v.d.orgs {
		if o.StudentID == studentID && o.ArchivedAt == nil {
			state.Organizations = append(state.Organizations, o)
		}
	}
	for _, e := range v.d.entries {
		if e.StudentID == studentID && e.ArchivedAt == nil {
			state.Entries = append(state.Entries, e)
		}
	}
	for _, it := range v.d.syncItems {
		if it.StudentID == studentID {
			state.SyncQueue = append(state.SyncQueue, it)
		}
	}
	for _, l := range v.d.links {
		if l.StudentID == studentID {
			state.ShareLinks = append(state.ShareLinks, l)
		}
	}
	newestFirst(state.Organizations, func(o model.Organization) int64 { return o.CreatedAt.UnixNano() })
	newestFirst(state.Entries, func(e model.ServiceEntry) int64 { return e.StartAt.UnixNano() })
	newestFirst(state.SyncQueue, func(it model.SyncQueueItem) int64 { return it.CreatedAt.UnixNano() })
	newestFirst(state.ShareLinks, func(l model.ShareLink) int64 { return l.CreatedAt.UnixNano() })
	return state, nil
}

func (v view) SetEntryStatus(_ context.Context, studentID, entryID uuid.UUID, status model.EntryStatus, rejectReason *string, at time.Time) error {
	for i, e := range v.d.entries {
		if e.ID != entryID || e.StudentID != studentID {
			continue
		}
		e.Status = status
		e.RejectReason = nil
		if status == model.EntryRejected && rejectReason != nil {
			reason := *rejectReason
			e.RejectReason = &reason
		}
		e.UpdatedAt = at
		v.d.entries[i] = e
		return nil
	}
	return fmt.Errorf("storage: service entry %s: %w", entryID, storage.ErrNotFound)
}

func (v view) RevokeShareLink(_ context.Context, studentID, linkID uuid.UUID, at time.Time) error {
	for i, l := range v.d.links {
		if l.ID != linkID || l.StudentID != studentID {
			continue
		}
		if l.RevokedAt == nil {
			l.RevokedAt = &at
			v.d.links[i] = l
		}
		return nil
	}
	return fmt.Errorf("storage: share link %s: %w", linkID, storage.ErrNotFound)
}

func (v view) SetSyncItemStatus(_ context.Context, studentID, itemID uuid.UUID, status model.SyncState, at time.Time) error {
	return v.updateSyncItem(studentID, itemID, func(it *model.SyncQueueItem) {
		it.Status = status
		it.UpdatedAt = at
	})
}

func (v view) RecordSyncFailure(_ context.Context, studentID, itemID uuid.UUID, errText string, at time.Time) error {
	return v.updateSyncItem(studentID, itemID, func(it *model.SyncQueueItem) {
		it.Status = model.SyncFailed
		it.LastError = &errText
		it.RetryCount++
		it.UpdatedAt = at
	})
}

func (v view) ResolveSyncConflict(_ context.Context, studentID, itemID uuid.UUID, resolution json.RawMessage, at time.Time) (model.SyncQueueItem, error) {
	for i, it := range v.d.syncItems {
		if it.ID != itemID || it.StudentID != studentID {
			continue
		}
		if it.Status != model.SyncConflict {
			return model.SyncQueueItem{}, fmt.Errorf("%w: %s is %s", storage.ErrNotInConflict, itemID, it.Status)
		}
		it.Status = model.SyncQueued
		it.Payload = append(json.RawMessage(nil), resolution...)
		it.RetryCount = 0
		it.LastError = nil
		it.UpdatedAt = at
		v.d.syncItems[i] = it
		return it, nil
	}
	return model.SyncQueueItem{}, fmt.Errorf("storage: sync queue item %s: %w", itemID, storage.ErrNotFound)
}

func (v view) updateSyncItem(studentID, itemID uuid.UUID, fn func(it *model.SyncQueueItem)) error {
	for i, it := range v.d.syncItems {
		if it.ID != itemID || it.StudentID != studentID {
			continue
		}
		fn(&it)
		v.d.syncItems[i] = it
		return nil
	}
	return fmt.Errorf("storage: sync queue item %s: %w", itemID, storage.ErrNotFound)
}

func (v view) CreateRun(_ context.Context, run model.AgentRun) error {
	for _, r := range v.d.runs {
		if r.ID == run.ID {
			return fmt.Errorf("storage: create run: duplicate id %s", run.ID)
		}
	}
	v.d.runs = append(v.d.runs, run)
	return nil
}

func (v view) GetRun(_ context.Context, studentID, runID uuid.UUID) (model.AgentRun, error) {
	for _, r := range v.d.runs {
		if r.ID == runID && r.StudentID == studentID {
			return r, nil
		}
	}
	return model.AgentRun{}, fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
}

func (v view) ListRuns(_ context.Context, studentID uuid.UUID, limit, offset int) ([]model.AgentRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []model.AgentRun
	for _, r := range v.d.runs {
		if r.StudentID == studentID {
			runs = append(runs, r)
		}
	}
	newestFirst(runs, func(r model.AgentRun) int64 { return r.CreatedAt.UnixNano() })
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (v view) UpdateRunStatus(_ context.Context, runID uuid.UUID, status model.RunStatus, at time.Time) error {
	for i, r := range v.d.runs {
		if r.ID == runID {
			r.Status = status
			r.UpdatedAt = at
			v.d.runs[i] = r
			return nil
		}
	}
	return fmt.Errorf("%w: %s", storage.ErrRunNotFound, runID)
}

func (v view) CreateActions(_ context.Context, actions []model.AgentAction) error {
	v.d.actions = append(v.d.actions, actions...)
	return nil
}

func (v view) ListActionsByRun(_ context.Context, runID uuid.UUID) ([]model.AgentAction, error) {
	var out []model.AgentAction
	for _, a := range v.d.actions {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (v view) MarkActionApplied(_ context.Context, actionID uuid.UUID, at time.Time) error {
	for i, a := range v.d.actions {
		if a.ID != actionID {
			continue
		}
		if a.AppliedAt != nil {
			return fmt.Errorf("%w: %s", storage.ErrAlreadyApplied, actionID)
		}
		a.Approved = true
		a.AppliedAt = &at
		a.ActionType = model.ActionTypeApply
		v.d.actions[i] = a
		return nil
	}
	return fmt.Errorf("storage: action %s: %w", actionID, storage.ErrNotFound)
}

func (v view) CreateSnapshot(_ context.Context, snap model.StateSnapshot) error {
	v.d.snapshots = append(v.d.snapshots, snap)
	return nil
}

func (v view) GetSnapshot(_ context.Context, studentID, snapshotID uuid.UUID) (model.StateSnapshot, error) {
	for _, s := range v.d.snapshots {
		if s.ID == snapshotID && s.StudentID == studentID {
			return s, nil
		}
	}
	return model.StateSnapshot{}, fmt.Errorf("%w: %s", storage.ErrSnapshotNotFound, snapshotID)
}

func (v view) InsertAuditEvent(_ context.Context, e model.AuditEvent) error {
	v.d.audit = append(v.d.audit, e)
	return nil
}

func (v view) ListAuditEvents(_ context.Context, studentID uuid.UUID, f model.AuditFilter) ([]model.AuditEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}
	var out []model.AuditEvent
	for i := len(v.d.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := v.d.audit[i]
		if e.StudentID == studentID && f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
