package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/houra-app/houra/internal/model"
)

// CreateActions inserts a run's actions, preserving their order.
func (s queries) CreateActions(ctx context.Context, actions []model.AgentAction) error {
	if len(actions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, a := range actions {
		diff := a.Diff
		if len(diff) == 0 {
			diff = []byte(`{}`)
		}
		batch.Queue(
			`INSERT INTO agent_actions (id, run_id, seq, action_type, action_kind, safety_class,
			     target_entity, target_id, title, detail, diff, approved, applied_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			a.ID, a.RunID, i, string(a.ActionType), string(a.ActionKind), string(a.SafetyClass),
			string(a.TargetEntity), a.TargetID, a.Title, a.Detail, string(diff),
			a.Approved, a.AppliedAt, a.CreatedAt,
		)
	}
	br := s.q.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range actions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("storage: create actions: %w", err)
		}
	}
	return nil
}

// ListActionsByRun returns a run's actions in proposal order.
func (s queries) ListActionsByRun(ctx context.Context, runID uuid.UUID) ([]model.AgentAction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, run_id, action_type, action_kind, safety_class, target_entity, target_id,
		        title, detail, diff, approved, applied_at, created_at
		 FROM agent_actions WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list actions: %w", err)
	}
	defer rows.Close()

	var actions []model.AgentAction
	for rows.Next() {
		var (
			a    model.AgentAction
			diff []byte
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.ActionType, &a.ActionKind, &a.SafetyClass,
			&a.TargetEntity, &a.TargetID, &a.Title, &a.Detail, &diff,
			&a.Approved, &a.AppliedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan action: %w", err)
		}
		a.Diff = diff
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// MarkActionApplied records that an action was applied. The applied_at guard
// makes a second application fail rather than overwrite the first.
func (s queries) MarkActionApplied(ctx context.Context, actionID uuid.UUID, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE agent_actions SET approved = true, applied_at = $1, action_type = $2
		 WHERE id = $3 AND applied_at IS NULL`,
		at, string(model.ActionTypeApply), actionID,
	)
	if err != nil {
		return fmt.Errorf("storage: mark action applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agent_actions WHERE id = $1)`, actionID).Scan(&exists); err != nil {
			return fmt.Errorf("storage: mark action applied: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyApplied, actionID)
		}
		return fmt.Errorf("storage: action %s: %w", actionID, ErrNotFound)
	}
	return nil
}
