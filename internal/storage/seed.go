package storage

import (
	"context"
	"fmt"

	"github.com/houra-app/houra/internal/model"
)

// Seeder inserts domain records directly. The records the agent acts on are
// normally written by the student-facing application; Seeder exists for
// fixtures, local development and tests.
type Seeder interface {
	PutStudent(ctx context.Context, st model.Student) error
	PutOrganization(ctx context.Context, o model.Organization) error
	PutServiceEntry(ctx context.Context, e model.ServiceEntry) error
	PutShareLink(ctx context.Context, l model.ShareLink) error
	PutSyncQueueItem(ctx context.Context, it model.SyncQueueItem) error
}

var _ Seeder = (*DB)(nil)

// PutStudent upserts a student.
func (db *DB) PutStudent(ctx context.Context, st model.Student) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO students (id, name, email, approved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
		     approved = EXCLUDED.approved, updated_at = EXCLUDED.updated_at`,
		st.ID, st.Name, st.Email, st.Approved, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: put student: %w", err)
	}
	return nil
}

// PutOrganization inserts an organization.
func (db *DB) PutOrganization(ctx context.Context, o model.Organization) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO organizations (id, student_id, name, contact_email, contact_phone,
		     evidence_required, archived_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.StudentID, o.Name, o.ContactEmail, o.ContactPhone,
		o.EvidenceRequired, o.ArchivedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: put organization: %w", err)
	}
	return nil
}

// PutServiceEntry inserts a service entry.
func (db *DB) PutServiceEntry(ctx context.Context, e model.ServiceEntry) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO service_entries (id, student_id, organization_id, activity_name, description,
		     start_at, end_at, duration_minutes, status, reject_reason, archived_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.StudentID, e.OrganizationID, e.ActivityName, e.Description,
		e.StartAt, e.EndAt, e.DurationMinutes, string(e.Status), e.RejectReason,
		e.ArchivedAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: put service entry: %w", err)
	}
	return nil
}

// PutShareLink inserts a share link.
func (db *DB) PutShareLink(ctx context.Context, l model.ShareLink) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO share_links (id, student_id, token_hash, scope, expires_at, revoked_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.StudentID, l.TokenHash, jsonOrEmpty(l.Scope), l.ExpiresAt, l.RevokedAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: put share link: %w", err)
	}
	return nil
}

// PutSyncQueueItem inserts a sync queue item.
func (db *DB) PutSyncQueueItem(ctx context.Context, it model.SyncQueueItem) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO sync_queue_items (id, student_id, entity_type, entity_id, operation, payload,
		     status, retry_count, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		it.ID, it.StudentID, string(it.EntityType), it.EntityID, string(it.Operation),
		jsonOrEmpty(it.Payload), string(it.Status), it.RetryCount, it.LastError,
		it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: put sync queue item: %w", err)
	}
	return nil
}

func jsonOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
