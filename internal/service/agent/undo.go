package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
)

// UndoInput names the snapshot whose batch should be undone.
type UndoInput struct {
	StudentID  uuid.UUID
	SnapshotID uuid.UUID
	// Actor is recorded on the undo audit event. Zero means the student.
	Actor model.Actor
}

// UndoResult reports whether the undo request was recorded.
type UndoResult struct {
	Success bool
}

// Undo records an undo request against a snapshot. Domain records are not
// reverted; the audit event is the durable request.
func (s *Service) Undo(ctx context.Context, in UndoInput) (UndoResult, error) {
	ctx, span := s.tracer.Start(ctx, "agent.undo")
	defer span.End()

	if in.StudentID == uuid.Nil || in.SnapshotID == uuid.Nil {
		return UndoResult{}, fmt.Errorf("%w: student id and snapshot id are required", ErrInvalidInput)
	}
	actor := in.Actor
	if actor.Type == "" {
		actor = model.Actor{Type: model.ActorStudent, ID: in.StudentID.String()}
	}

	err := s.store.InTx(ctx, in.StudentID, func(tx storage.Tx) error {
		snap, err := tx.GetSnapshot(ctx, in.StudentID, in.SnapshotID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		now := s.now()
		ev := auditEvent(in.StudentID, actor, model.EntityStateSnapshot, snap.ID, model.ActionTypeUndo, uuid.New(), now)
		ev.SnapshotID = &snap.ID
		ev.After = toJSON(struct {
			UndoneAt time.Time `json:"undoneAt"`
		}{now})
		return tx.InsertAuditEvent(ctx, ev)
	})
	if err != nil {
		if IsValidation(err) {
			return UndoResult{}, err
		}
		s.logger.Error("agent: undo failed", "snapshot_id", in.SnapshotID, "error", err)
		return UndoResult{}, fmt.Errorf("agent: record undo: %w", err)
	}
	s.logger.Info("agent: undo recorded", "snapshot_id", in.SnapshotID, "student_id", in.StudentID)
	return UndoResult{Success: true}, nil
}
