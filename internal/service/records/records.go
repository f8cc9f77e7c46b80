// Package records implements the student's manual edits that the agent
// panel exposes next to agent actions: revoking a share link, moving
// service entries between review states and resolving sync conflicts. Each
// edit commits with its audit event.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
)

// Errors returned to callers. All map to 4xx responses.
var (
	ErrInvalidInput  = errors.New("records: invalid input")
	ErrNotFound      = errors.New("records: not found")
	ErrNotInConflict = errors.New("records: sync item not in conflict")
)

// Service applies manual record changes.
type Service struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a records Service.
func New(store storage.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// RevokeShareLink revokes one of the student's share links. Revoking an
// already revoked link keeps the original revocation time and still records
// the request.
func (s *Service) RevokeShareLink(ctx context.Context, studentID uuid.UUID, actor model.Actor, linkID uuid.UUID) (model.ShareLink, error) {
	var revoked model.ShareLink
	err := s.store.InTx(ctx, studentID, func(tx storage.Tx) error {
		before, err := findLink(ctx, tx, studentID, linkID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.RevokeShareLink(ctx, studentID, linkID, now); err != nil {
			return mapNotFound(err)
		}
		after, err := findLink(ctx, tx, studentID, linkID)
		if err != nil {
			return err
		}

		ev := newEvent(studentID, actor, model.EntityShareLink, linkID, linkID, now)
		ev.Before = marshal(before)
		ev.After = marshal(after)
		ev.Diff = marshal(map[string]any{"revokedAt": after.RevokedAt})
		if err := tx.InsertAuditEvent(ctx, ev); err != nil {
			return err
		}
		revoked = after
		return nil
	})
	if err != nil {
		return model.ShareLink{}, err
	}
	s.logger.Info("records: share link revoked", "student_id", studentID, "link_id", linkID)
	return revoked, nil
}

// BulkSetStatus moves every listed entry to req.Status. Either all entries
// change or none do. One audit event covers the whole batch.
func (s *Service) BulkSetStatus(ctx context.Context, studentID uuid.UUID, actor model.Actor, req model.BulkStatusRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var reason *string
	if req.Status == model.EntryRejected {
		reason = req.RejectReason
	}

	err := s.store.InTx(ctx, studentID, func(tx storage.Tx) error {
		now := s.now()
		for _, id := range req.EntryIDs {
			if err := tx.SetEntryStatus(ctx, studentID, id, req.Status, reason, now); err != nil {
				return mapNotFound(err)
			}
		}
		ev := newEvent(studentID, actor, model.EntityServiceEntry, req.EntryIDs[0], uuid.New(), now)
		ev.Diff = marshal(map[string]any{
			"status":       req.Status,
			"count":        len(req.EntryIDs),
			"entryIds":     req.EntryIDs,
			"rejectReason": reason,
		})
		return tx.InsertAuditEvent(ctx, ev)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("records: bulk status applied",
		"student_id", studentID, "status", req.Status, "entries", len(req.EntryIDs))
	return len(req.EntryIDs), nil
}

// ResolveSyncConflict requeues a sync item that upstream rejected as
// conflicting, replacing its payload with the student's resolution. The
// flusher picks it up again on its next pass.
func (s *Service) ResolveSyncConflict(ctx context.Context, studentID uuid.UUID, actor model.Actor, req model.ResolveConflictRequest) (model.SyncQueueItem, error) {
	if err := req.Validate(); err != nil {
		return model.SyncQueueItem{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var resolved model.SyncQueueItem
	err := s.store.InTx(ctx, studentID, func(tx storage.Tx) error {
		now := s.now()
		before, err := findSyncItem(ctx, tx, studentID, req.ItemID)
		if err != nil {
			return err
		}
		after, err := tx.ResolveSyncConflict(ctx, studentID, req.ItemID, req.Resolution, now)
		if errors.Is(err, storage.ErrNotInConflict) {
			return fmt.Errorf("%w: %w", ErrNotInConflict, err)
		}
		if err != nil {
			return mapNotFound(err)
		}

		ev := newEvent(studentID, actor, model.EntitySyncConflict, req.ItemID, req.ItemID, now)
		ev.ActionType = model.ActionTypeResolveConflict
		ev.Before = marshal(before)
		ev.After = marshal(after)
		if err := tx.InsertAuditEvent(ctx, ev); err != nil {
			return err
		}
		resolved = after
		return nil
	})
	if err != nil {
		return model.SyncQueueItem{}, err
	}
	s.logger.Info("records: sync conflict resolved", "student_id", studentID, "item_id", req.ItemID)
	return resolved, nil
}

func findSyncItem(ctx context.Context, tx storage.Tx, studentID, itemID uuid.UUID) (model.SyncQueueItem, error) {
	state, err := tx.GetStateForStudent(ctx, studentID)
	if err != nil {
		return model.SyncQueueItem{}, err
	}
	for _, it := range state.SyncQueue {
		if it.ID == itemID {
			return it, nil
		}
	}
	return model.SyncQueueItem{}, fmt.Errorf("%w: sync queue item %s", ErrNotFound, itemID)
}

func findLink(ctx context.Context, tx storage.Tx, studentID, linkID uuid.UUID) (model.ShareLink, error) {
	state, err := tx.GetStateForStudent(ctx, studentID)
	if err != nil {
		return model.ShareLink{}, err
	}
	for _, l := range state.ShareLinks {
		if l.ID == linkID {
			return l, nil
		}
	}
	return model.ShareLink{}, fmt.Errorf("%w: share link %s", ErrNotFound, linkID)
}

func mapNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func newEvent(studentID uuid.UUID, actor model.Actor, entity model.EntityType, entityID, correlationID uuid.UUID, at time.Time) model.AuditEvent {
	e := model.AuditEvent{
		ID:            uuid.New(),
		StudentID:     studentID,
		Timestamp:     at,
		ActorType:     actor.Type,
		Source:        actor.Source(),
		EntityType:    entity,
		EntityID:      entityID,
		ActionType:    model.ActionTypeUpdate,
		CorrelationID: correlationID,
	}
	if actor.ID != "" {
		id := actor.ID
		e.ActorID = &id
	}
	return e
}

func marshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
