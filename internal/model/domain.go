package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntryStatus is the review state of a service entry.
type EntryStatus string

const (
	EntryDraft         EntryStatus = "Draft"
	EntryPendingReview EntryStatus = "Pending Review"
	EntryVerified      EntryStatus = "Verified"
	EntryRejected      EntryStatus = "Rejected"
	EntryExported      EntryStatus = "Exported"
)

// Valid reports whether s is a known entry status.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryDraft, EntryPendingReview, EntryVerified, EntryRejected, EntryExported:
		return true
	}
	return false
}

// SyncState is the upload state of a queued offline mutation.
type SyncState string

const (
	SyncQueued    SyncState = "Queued"
	SyncUploading SyncState = "Uploading"
	SyncSynced    SyncState = "Synced"
	SyncFailed    SyncState = "Failed"
	SyncConflict  SyncState = "Conflict"
)

// Student is the owner of all domain records.
type Student struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Organization is a place where a student performs service.
type Organization struct {
	ID               uuid.UUID  `json:"id"`
	StudentID        uuid.UUID  `json:"student_id"`
	Name             string     `json:"name"`
	ContactEmail     string     `json:"contact_email,omitempty"`
	ContactPhone     string     `json:"contact_phone,omitempty"`
	EvidenceRequired bool       `json:"evidence_required"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ServiceEntry is one logged block of service hours.
type ServiceEntry struct {
	ID              uuid.UUID   `json:"id"`
	StudentID       uuid.UUID   `json:"student_id"`
	OrganizationID  uuid.UUID   `json:"organization_id"`
	ActivityName    string      `json:"activity_name"`
	Description     string      `json:"description,omitempty"`
	StartAt         time.Time   `json:"start_at"`
	EndAt           time.Time   `json:"end_at"`
	DurationMinutes int         `json:"duration_minutes"`
	Status          EntryStatus `json:"status"`
	RejectReason    *string     `json:"reject_reason,omitempty"`
	ArchivedAt      *time.Time  `json:"archived_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ShareLink grants read access to a student's records until it expires or
// is revoked.
type ShareLink struct {
	ID        uuid.UUID       `json:"id"`
	StudentID uuid.UUID       `json:"student_id"`
	TokenHash string          `json:"-"`
	Scope     json.RawMessage `json:"scope,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
	RevokedAt *time.Time      `json:"revoked_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Expired reports whether the link's expiry is strictly before now.
func (l ShareLink) Expired(now time.Time) bool { return l.ExpiresAt.Before(now) }

// Revoked reports whether the link has been revoked.
func (l ShareLink) Revoked() bool { return l.RevokedAt != nil }

// SyncQueueItem is an offline mutation awaiting upload.
type SyncQueueItem struct {
	ID         uuid.UUID       `json:"id"`
	StudentID  uuid.UUID       `json:"student_id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Operation  ActionType      `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     SyncState       `json:"status"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DomainState is a read of everything the agent may act on for one student.
// Slices are ordered newest first, matching what the student sees.
type DomainState struct {
	StudentID     uuid.UUID       `json:"student_id"`
	Organizations []Organization  `json:"organizations"`
	Entries       []ServiceEntry  `json:"entries"`
	SyncQueue     []SyncQueueItem `json:"sync_queue"`
	ShareLinks    []ShareLink     `json:"share_links"`
}
