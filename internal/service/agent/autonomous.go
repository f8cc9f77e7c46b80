package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/guardrails"
	"github.com/houra-app/houra/internal/model"
)

// Defaults for scheduled runs.
const (
	DefaultAutonomousObjective = "Keep logs submission-ready, reduce sync debt, and enforce link hygiene autonomously."
	AutonomousContextScope     = "scheduled"
)

// SystemCronActor is recorded on actions applied by scheduled runs.
var SystemCronActor = model.Actor{Type: model.ActorSystem, ID: "system-cron"}

// AutonomousInput overrides the scheduled run defaults. Empty fields keep them.
type AutonomousInput struct {
	Objective    string
	ContextScope string
	Model        string
}

// AutonomousResult summarizes one autonomous pass.
type AutonomousResult struct {
	RunID       uuid.UUID
	Proposed    int
	AppliedSafe int
	// SnapshotID is set when at least one safe action was applied.
	SnapshotID *uuid.UUID
}

// RunAutonomous proposes actions for the student and applies only the safe
// ones. Dangerous proposals stay pending for the student to review.
func (s *Service) RunAutonomous(ctx context.Context, studentID uuid.UUID, in AutonomousInput) (AutonomousResult, error) {
	if in.Objective == "" {
		in.Objective = DefaultAutonomousObjective
	}
	if in.ContextScope == "" {
		in.ContextScope = AutonomousContextScope
	}

	run, err := s.Run(ctx, RunInput{
		StudentID:    studentID,
		Objective:    in.Objective,
		ContextScope: in.ContextScope,
		Model:        in.Model,
		Autonomous:   true,
	})
	if err != nil {
		return AutonomousResult{}, err
	}
	res := AutonomousResult{RunID: run.Run.ID, Proposed: len(run.Actions)}

	var safe []uuid.UUID
	for _, a := range run.Actions {
		if !guardrails.RequiresApproval(a.ActionKind) {
			safe = append(safe, a.ID)
		}
	}
	if len(safe) == 0 {
		s.logger.Info("agent: autonomous run left all actions for review",
			"run_id", run.Run.ID, "student_id", studentID, "proposed", res.Proposed)
		return res, nil
	}

	applied, err := s.Apply(ctx, ApplyInput{
		StudentID:        studentID,
		RunID:            run.Run.ID,
		ActionIDs:        safe,
		ApproveDangerous: false,
		Actor:            SystemCronActor,
	})
	if err != nil {
		return res, err
	}
	res.AppliedSafe = len(applied.Applied)
	res.SnapshotID = &applied.SnapshotID
	return res, nil
}
