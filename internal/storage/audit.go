package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
)

// InsertAuditEvent appends an audit event. The target table is immutable.
func (s queries) InsertAuditEvent(ctx context.Context, e model.AuditEvent) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO audit_events (
		     id, student_id, "timestamp", actor_type, actor_id, source,
		     entity_type, entity_id, action_type,
		     before_json, after_json, diff_json, correlation_id, snapshot_id
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.StudentID, e.Timestamp, string(e.ActorType), e.ActorID, string(e.Source),
		string(e.EntityType), e.EntityID, string(e.ActionType),
		nullableJSON(e.Before), nullableJSON(e.After), nullableJSON(e.Diff),
		e.CorrelationID, e.SnapshotID,
	)
	if err != nil {
		return fmt.Errorf("storage: insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the student's audit events, newest first.
func (s queries) ListAuditEvents(ctx context.Context, studentID uuid.UUID, f model.AuditFilter) ([]model.AuditEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}

	where := []string{"student_id = $1"}
	args := []any{studentID}
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("actor_type", string(f.ActorType))
	add("entity_type", string(f.EntityType))
	add("action_type", string(f.ActionType))
	args = append(args, limit)

	rows, err := s.q.Query(ctx,
		`SELECT id, student_id, "timestamp", actor_type, actor_id, source, entity_type, entity_id,
		        action_type, before_json, after_json, diff_json, correlation_id, snapshot_id
		 FROM audit_events WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY "timestamp" DESC, seq DESC LIMIT $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var (
			e                   model.AuditEvent
			before, after, diff []byte
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Timestamp, &e.ActorType, &e.ActorID, &e.Source,
			&e.EntityType, &e.EntityID, &e.ActionType, &before, &after, &diff,
			&e.CorrelationID, &e.SnapshotID); err != nil {
			return nil, fmt.Errorf("storage: scan audit event: %w", err)
		}
		e.Before, e.After, e.Diff = before, after, diff
		events = append(events, e)
	}
	return events, rows.Err()
}

// nullableJSON maps an empty payload to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
