package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/houra-app/houra/internal/model"
)

// GetStateForStudent reads the student's active domain records, newest first.
func (s queries) GetStateForStudent(ctx context.Context, studentID uuid.UUID) (model.DomainState, error) {
	state := model.DomainState{StudentID: studentID}
	var err error

	if state.Organizations, err = s.listOrganizations(ctx, studentID); err != nil {
		return model.DomainState{}, err
	}
	if state.Entries, err = s.listEntries(ctx, studentID); err != nil {
		return model.DomainState{}, err
	}
	if state.SyncQueue, err = s.listSyncQueue(ctx, studentID); err != nil {
		return model.DomainState{}, err
	}
	if state.ShareLinks, err = s.listShareLinks(ctx, studentID); err != nil {
		return model.DomainState{}, err
	}
	return state, nil
}

func (s queries) listOrganizations(ctx context.Context, studentID uuid.UUID) ([]model.Organization, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, student_id, name, contact_email, contact_phone, evidence_required,
		        archived_at, created_at, updated_at
		 FROM organizations WHERE student_id = $1 AND archived_at IS NULL
		 ORDER BY created_at DESC, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("storage: list organizations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Organization, error) {
		var o model.Organization
		err := row.Scan(&o.ID, &o.StudentID, &o.Name, &o.ContactEmail, &o.ContactPhone,
			&o.EvidenceRequired, &o.ArchivedAt, &o.CreatedAt, &o.UpdatedAt)
		return o, err
	})
}

func (s queries) listEntries(ctx context.Context, studentID uuid.UUID) ([]model.ServiceEntry, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, student_id, organization_id, activity_name, description, start_at, end_at,
		        duration_minutes, status, reject_reason, archived_at, created_at, updated_at
		 FROM service_entries WHERE student_id = $1 AND archived_at IS NULL
		 ORDER BY start_at DESC, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("storage: list service entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ServiceEntry, error) {
		var e model.ServiceEntry
		err := row.Scan(&e.ID, &e.StudentID, &e.OrganizationID, &e.ActivityName, &e.Description,
			&e.StartAt, &e.EndAt, &e.DurationMinutes, &e.Status, &e.RejectReason,
			&e.ArchivedAt, &e.CreatedAt, &e.UpdatedAt)
		return e, err
	})
}

func (s queries) listSyncQueue(ctx context.Context, studentID uuid.UUID) ([]model.SyncQueueItem, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, student_id, entity_type, entity_id, operation, payload, status,
		        retry_count, last_error, created_at, updated_at
		 FROM sync_queue_items WHERE student_id = $1
		 ORDER BY created_at DESC, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("storage: list sync queue: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.SyncQueueItem, error) {
		var (
			it      model.SyncQueueItem
			payload []byte
		)
		err := row.Scan(&it.ID, &it.StudentID, &it.EntityType, &it.EntityID, &it.Operation,
			&payload, &it.Status, &it.RetryCount, &it.LastError, &it.CreatedAt, &it.UpdatedAt)
		it.Payload = payload
		return it, err
	})
}

func (s queries) listShareLinks(ctx context.Context, studentID uuid.UUID) ([]model.ShareLink, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, student_id, token_hash, scope, expires_at, revoked_at, created_at
		 FROM share_links WHERE student_id = $1
		 ORDER BY created_at DESC, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("storage: list share links: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ShareLink, error) {
		var (
			l     model.ShareLink
			scope []byte
		)
		err := row.Scan(&l.ID, &l.StudentID, &l.TokenHash, &scope, &l.ExpiresAt, &l.RevokedAt, &l.CreatedAt)
		l.Scope = scope
		return l, err
	})
}

// SetEntryStatus updates a service entry's status. The reject reason is
// cleared unless the new status is Rejected.
func (s queries) SetEntryStatus(ctx context.Context, studentID, entryID uuid.UUID, status model.EntryStatus, rejectReason *string, at time.Time) error {
	if status != model.EntryRejected {
		rejectReason = nil
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE service_entries SET status = $1, reject_reason = $2, updated_at = $3
		 WHERE id = $4 AND student_id = $5`,
		string(status), rejectReason, at, entryID, studentID,
	)
	if err != nil {
		return fmt.Errorf("storage: set entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: service entry %s: %w", entryID, ErrNotFound)
	}
	return nil
}

// RevokeShareLink stamps revoked_at. Revoking an already-revoked link keeps
// the original timestamp.
func (s queries) RevokeShareLink(ctx context.Context, studentID, linkID uuid.UUID, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE share_links SET revoked_at = COALESCE(revoked_at, $1)
		 WHERE id = $2 AND student_id = $3`,
		at, linkID, studentID,
	)
	if err != nil {
		return fmt.Errorf("storage: revoke share link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: share link %s: %w", linkID, ErrNotFound)
	}
	return nil
}

// SetSyncItemStatus updates a sync queue item's status.
func (s queries) SetSyncItemStatus(ctx context.Context, studentID, itemID uuid.UUID, status model.SyncState, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE sync_queue_items SET status = $1, updated_at = $2
		 WHERE id = $3 AND student_id = $4`,
		string(status), at, itemID, studentID,
	)
	if err != nil {
		return fmt.Errorf("storage: set sync item status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: sync queue item %s: %w", itemID, ErrNotFound)
	}
	return nil
}

// RecordSyncFailure marks a sync queue item Failed and bumps its retry count.
func (s queries) RecordSyncFailure(ctx context.Context, studentID, itemID uuid.UUID, errText string, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE sync_queue_items
		 SET status = $1, last_error = $2, retry_count = retry_count + 1, updated_at = $3
		 WHERE id = $4 AND student_id = $5`,
		string(model.SyncFailed), errText, at, itemID, studentID,
	)
	if err != nil {
		return fmt.Errorf("storage: record sync failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: sync queue item %s: %w", itemID, ErrNotFound)
	}
	return nil
}

// ResolveSyncConflict requeues a Conflict item with the resolved payload.
func (s queries) ResolveSyncConflict(ctx context.Context, studentID, itemID uuid.UUID, resolution json.RawMessage, at time.Time) (model.SyncQueueItem, error) {
	var (
		it      model.SyncQueueItem
		payload []byte
	)
	err := s.q.QueryRow(ctx,
		`UPDATE sync_queue_items
		 SET status = $1, payload = $2, retry_count = 0, last_error = NULL, updated_at = $3
		 WHERE id = $4 AND student_id = $5 AND status = $6
		 RETURNING id, student_id, entity_type, entity_id, operation, payload, status,
		           retry_count, last_error, created_at, updated_at`,
		string(model.SyncQueued), jsonOrEmpty(resolution), at, itemID, studentID, string(model.SyncConflict),
	).Scan(&it.ID, &it.StudentID, &it.EntityType, &it.EntityID, &it.Operation,
		&payload, &it.Status, &it.RetryCount, &it.LastError, &it.CreatedAt, &it.UpdatedAt)
	if err == nil {
		it.Payload = payload
		return it, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.SyncQueueItem{}, fmt.Errorf("storage: resolve sync conflict: %w", err)
	}

	var status string
	err = s.q.QueryRow(ctx,
		`SELECT status FROM sync_queue_items WHERE id = $1 AND student_id = $2`,
		itemID, studentID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SyncQueueItem{}, fmt.Errorf("storage: sync queue item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return model.SyncQueueItem{}, fmt.Errorf("storage: resolve sync conflict: %w", err)
	}
	return model.SyncQueueItem{}, fmt.Errorf("%w: %s is %s", ErrNotInConflict, itemID, status)
}
