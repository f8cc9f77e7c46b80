package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/houra-app/houra/internal/model"
)

// CreateSnapshot inserts an apply-batch snapshot.
func (s queries) CreateSnapshot(ctx context.Context, snap model.StateSnapshot) error {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("storage: marshal snapshot: %w", err)
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO state_snapshots (id, student_id, batch_id, snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.StudentID, snap.BatchID, string(data), snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves a snapshot by ID, scoped to the given student.
func (s queries) GetSnapshot(ctx context.Context, studentID, snapshotID uuid.UUID) (model.StateSnapshot, error) {
	var (
		snap model.StateSnapshot
		data []byte
	)
	err := s.q.QueryRow(ctx,
		`SELECT id, student_id, batch_id, snapshot, created_at
		 FROM state_snapshots WHERE id = $1 AND student_id = $2`,
		snapshotID, studentID,
	).Scan(&snap.ID, &snap.StudentID, &snap.BatchID, &data, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StateSnapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
		}
		return model.StateSnapshot{}, fmt.Errorf("storage: get snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap.Data); err != nil {
		return model.StateSnapshot{}, fmt.Errorf("storage: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
