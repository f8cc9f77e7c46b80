package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/proposer"
	"github.com/houra-app/houra/internal/storage"
)

// RunInput starts an agent run for one student.
type RunInput struct {
	StudentID    uuid.UUID
	Objective    string
	ContextScope string
	Model        string
	Autonomous   bool
}

// RunResult is a run awaiting approval together with its proposals.
type RunResult struct {
	Run     model.AgentRun
	Actions []model.AgentAction
	Source  proposer.Source
}

// Run proposes actions for the student and persists the run, its actions and
// their audit events atomically. On success the run is AwaitingApproval with
// at least one action. On failure nothing of the proposal is persisted and
// the error wraps ErrRunFailed.
func (s *Service) Run(ctx context.Context, in RunInput) (RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "agent.run")
	defer span.End()

	if in.Model == "" {
		in.Model = model.DefaultModel
	}
	if in.StudentID == uuid.Nil {
		return RunResult{}, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	req := model.CreateRunRequest{Objective: in.Objective, ContextScope: in.ContextScope, Model: in.Model}
	if err := req.Validate(); err != nil {
		return RunResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now()
	run := model.AgentRun{
		ID:           uuid.New(),
		StudentID:    in.StudentID,
		Model:        in.Model,
		Objective:    in.Objective,
		ContextScope: in.ContextScope,
		Status:       model.RunStatusQueued,
		Autonomous:   in.Autonomous,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	span.SetAttributes(
		attribute.String("houra.run_id", run.ID.String()),
		attribute.Bool("houra.autonomous", in.Autonomous),
	)
	if err := run.Transition(model.RunStatusProposing, now); err != nil {
		return RunResult{}, s.failRun(ctx, run, "transition", err)
	}

	state, err := s.store.GetStateForStudent(ctx, in.StudentID)
	if err != nil {
		return RunResult{}, s.failRun(ctx, run, "read_state", err)
	}

	proposal := s.proposer.Propose(ctx, run, state)
	if len(proposal.Actions) == 0 {
		return RunResult{}, s.failRun(ctx, run, "propose", errors.New("proposer returned no actions"))
	}

	if err := run.Transition(model.RunStatusAwaitingApproval, s.now()); err != nil {
		return RunResult{}, s.failRun(ctx, run, "transition", err)
	}

	err = s.store.InTx(ctx, in.StudentID, func(tx storage.Tx) error {
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}
		if err := tx.CreateActions(ctx, proposal.Actions); err != nil {
			return err
		}
		created := auditEvent(run.StudentID, model.AgentActor, model.EntityAgentRun, run.ID,
			model.ActionTypeCreate, run.ID, run.UpdatedAt)
		created.After = toJSON(run)
		if err := tx.InsertAuditEvent(ctx, created); err != nil {
			return err
		}
		for _, a := range proposal.Actions {
			ev := auditEvent(run.StudentID, model.AgentActor, model.EntityAgentAction, a.ID,
				model.ActionTypePropose, run.ID, run.UpdatedAt)
			ev.After = toJSON(a)
			ev.Diff = a.Diff
			if err := tx.InsertAuditEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RunResult{}, s.failRun(ctx, run, "persist", err)
	}

	s.runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(run.Status)),
		attribute.String("source", string(proposal.Source)),
	))
	s.logger.Info("agent: run proposed",
		"run_id", run.ID,
		"student_id", run.StudentID,
		"actions", len(proposal.Actions),
		"source", proposal.Source,
		"autonomous", run.Autonomous,
	)
	return RunResult{Run: run, Actions: proposal.Actions, Source: proposal.Source}, nil
}

// failRun logs the failure, records the run as Failed when that is still
// possible, and returns the error for the caller. The Failed record carries
// no actions, so it is complete on its own.
func (s *Service) failRun(ctx context.Context, run model.AgentRun, stage string, cause error) error {
	s.logger.Error("agent: run failed",
		"run_id", run.ID, "student_id", run.StudentID, "stage", stage, "error", cause)

	span := traceSpan(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "agent run failed")
	s.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(model.RunStatusFailed))))

	if err := run.Transition(model.RunStatusFailed, s.now()); err == nil {
		recErr := s.store.InTx(ctx, run.StudentID, func(tx storage.Tx) error {
			if err := tx.CreateRun(ctx, run); err != nil {
				return err
			}
			ev := auditEvent(run.StudentID, model.AgentActor, model.EntityAgentRun, run.ID,
				model.ActionTypeCreate, run.ID, run.UpdatedAt)
			ev.After = toJSON(run)
			return tx.InsertAuditEvent(ctx, ev)
		})
		if recErr != nil {
			s.logger.Warn("agent: could not record failed run", "run_id", run.ID, "error", recErr)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrRunFailed, stage, cause)
}
