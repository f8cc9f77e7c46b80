package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/houra-app/houra/internal/guardrails"
	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
)

// ApplyInput selects actions of one run to apply.
type ApplyInput struct {
	StudentID        uuid.UUID
	RunID            uuid.UUID
	ActionIDs        []uuid.UUID
	ApproveDangerous bool
	// Actor is recorded on the apply audit events. Zero means the student.
	Actor model.Actor
}

// ApplyResult describes a committed apply batch.
type ApplyResult struct {
	SnapshotID uuid.UUID
	Applied    []model.AgentAction
}

// Apply applies the selected, not yet applied actions of a run in proposal
// order. Unknown ids are ignored. If any selected action is dangerous and
// ApproveDangerous is false, nothing is applied and ErrApprovalRequired is
// returned. The effects, action updates, audit events, snapshot and run
// status commit together or not at all.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (ApplyResult, error) {
	ctx, span := s.tracer.Start(ctx, "agent.apply")
	defer span.End()
	start := time.Now()

	if in.StudentID == uuid.Nil {
		return ApplyResult{}, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	req := model.ApplyActionsRequest{RunID: in.RunID, ActionIDs: in.ActionIDs, ApproveDangerous: in.ApproveDangerous}
	if err := req.Validate(); err != nil {
		return ApplyResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	actor := in.Actor
	if actor.Type == "" {
		actor = model.Actor{Type: model.ActorStudent, ID: in.StudentID.String()}
	}
	span.SetAttributes(attribute.String("houra.run_id", in.RunID.String()))

	var result ApplyResult
	err := s.store.InTx(ctx, in.StudentID, func(tx storage.Tx) error {
		result = ApplyResult{}

		run, err := tx.GetRun(ctx, in.StudentID, in.RunID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}

		all, err := tx.ListActionsByRun(ctx, run.ID)
		if err != nil {
			return err
		}
		selected := selectActions(all, in.ActionIDs)
		if len(selected) == 0 {
			return ErrNoActions
		}
		if dangerous := guardrails.Dangerous(selected); len(dangerous) > 0 && !in.ApproveDangerous {
			return fmt.Errorf("%w: %v", ErrApprovalRequired, dangerous)
		}

		now := s.now()
		if err := run.Transition(model.RunStatusApplied, now); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}

		snapshotID := uuid.New()
		applied := make([]model.AgentAction, 0, len(selected))
		for _, a := range selected {
			if err := applyEffect(ctx, tx, in.StudentID, a, now); err != nil {
				return err
			}
			if err := tx.MarkActionApplied(ctx, a.ID, now); err != nil {
				return err
			}
			a.ActionType = model.ActionTypeApply
			a.Approved = true
			a.AppliedAt = &now

			ev := auditEvent(in.StudentID, actor, model.EntityAgentAction, a.ID, model.ActionTypeApply, run.ID, now)
			ev.SnapshotID = &snapshotID
			ev.Diff = a.Diff
			ev.After = toJSON(a)
			if err := tx.InsertAuditEvent(ctx, ev); err != nil {
				return err
			}
			applied = append(applied, a)
		}

		ids := make([]uuid.UUID, len(applied))
		for i, a := range applied {
			ids[i] = a.ID
		}
		snap := model.StateSnapshot{
			ID:        snapshotID,
			StudentID: in.StudentID,
			BatchID:   run.ID,
			Data:      model.SnapshotData{ActionIDs: ids, At: now},
			CreatedAt: now,
		}
		if err := tx.CreateSnapshot(ctx, snap); err != nil {
			return err
		}
		if err := tx.UpdateRunStatus(ctx, run.ID, run.Status, now); err != nil {
			return err
		}

		result = ApplyResult{SnapshotID: snapshotID, Applied: applied}
		return nil
	})
	s.applyDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		if IsValidation(err) {
			return ApplyResult{}, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		s.logger.Error("agent: apply failed", "run_id", in.RunID, "student_id", in.StudentID, "error", err)
		return ApplyResult{}, fmt.Errorf("%w: %w", ErrApplyFailed, err)
	}

	for _, a := range result.Applied {
		s.appliedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(a.ActionKind))))
	}
	s.logger.Info("agent: actions applied",
		"run_id", in.RunID,
		"student_id", in.StudentID,
		"snapshot_id", result.SnapshotID,
		"applied", len(result.Applied),
	)
	return result, nil
}

// selectActions returns the requested actions that are not yet applied,
// keeping the run's proposal order.
func selectActions(all []model.AgentAction, ids []uuid.UUID) []model.AgentAction {
	var out []model.AgentAction
	for _, a := range all {
		if a.Applied() || !slices.Contains(ids, a.ID) {
			continue
		}
		out = append(out, a)
	}
	return out
}
