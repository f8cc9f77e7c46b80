package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/houra-app/houra/internal/model"
)

// ListActiveStudents returns approved students, most recently updated first.
func (db *DB) ListActiveStudents(ctx context.Context, limit int) ([]model.Student, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, email, approved, created_at, updated_at
		 FROM students WHERE approved
		 ORDER BY updated_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list active students: %w", err)
	}
	students, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Student, error) {
		var st model.Student
		err := row.Scan(&st.ID, &st.Name, &st.Email, &st.Approved, &st.CreatedAt, &st.UpdatedAt)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan students: %w", err)
	}
	return students, nil
}
