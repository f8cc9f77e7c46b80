package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/houra-app/houra/internal/model"
)

const runColumns = `id, student_id, model, objective, context_scope, status, autonomous, created_at, updated_at`

func scanRun(row pgx.Row) (model.AgentRun, error) {
	var r model.AgentRun
	err := row.Scan(&r.ID, &r.StudentID, &r.Model, &r.Objective, &r.ContextScope,
		&r.Status, &r.Autonomous, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// CreateRun inserts a new agent run.
func (s queries) CreateRun(ctx context.Context, run model.AgentRun) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO agent_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.StudentID, run.Model, run.Objective, run.ContextScope,
		string(run.Status), run.Autonomous, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, scoped to the given student.
func (s queries) GetRun(ctx context.Context, studentID, runID uuid.UUID) (model.AgentRun, error) {
	run, err := scanRun(s.q.QueryRow(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE id = $1 AND student_id = $2`,
		runID, studentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return model.AgentRun{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the student's runs, newest first.
func (s queries) ListRuns(ctx context.Context, studentID uuid.UUID, limit, offset int) ([]model.AgentRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE student_id = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		studentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpdateRunStatus sets the run's status and updated_at.
func (s queries) UpdateRunStatus(ctx context.Context, runID uuid.UUID, status model.RunStatus, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE agent_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), at, runID,
	)
	if err != nil {
		return fmt.Errorf("storage: update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
