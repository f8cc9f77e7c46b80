package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Field length limits for agent run requests.
const (
	MinObjectiveLen    = 3
	MaxObjectiveLen    = 600
	MinContextScopeLen = 1
	MaxContextScopeLen = 120
	MinModelLen        = 2
	MaxModelLen        = 120

	// MaxBulkEntries bounds a single manual bulk status request.
	MaxBulkEntries = 500
)

// DefaultModel is the model name recorded on runs that do not specify one.
const DefaultModel = "gpt-5.3-codex"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeApprovalRequired = "APPROVAL_REQUIRED"
	ErrCodeApplyFailed      = "APPLY_FAILED"
	ErrCodeRunFailed        = "RUN_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
)

// CreateRunRequest is the request body for POST /v1/agent/runs.
type CreateRunRequest struct {
	Objective    string `json:"objective"`
	ContextScope string `json:"context_scope"`
	Model        string `json:"model"`
	Autonomous   bool   `json:"autonomous"`
}

// Validate checks field bounds. Lengths count runes, not bytes.
func (r CreateRunRequest) Validate() error {
	if err := checkLen("objective", r.Objective, MinObjectiveLen, MaxObjectiveLen); err != nil {
		return err
	}
	if err := checkLen("context_scope", r.ContextScope, MinContextScopeLen, MaxContextScopeLen); err != nil {
		return err
	}
	return checkLen("model", r.Model, MinModelLen, MaxModelLen)
}

// ApplyActionsRequest is the request body for POST /v1/agent/actions/apply.
type ApplyActionsRequest struct {
	RunID            uuid.UUID   `json:"run_id"`
	ActionIDs        []uuid.UUID `json:"action_ids"`
	ApproveDangerous bool        `json:"approve_dangerous"`
}

// Validate checks that a run and at least one action are named.
func (r ApplyActionsRequest) Validate() error {
	if r.RunID == uuid.Nil {
		return fmt.Errorf("run_id is required")
	}
	if len(r.ActionIDs) == 0 {
		return fmt.Errorf("action_ids must contain at least one id")
	}
	return nil
}

// ApplyActionsResponse is returned after a successful apply.
type ApplyActionsResponse struct {
	SnapshotID uuid.UUID     `json:"snapshot_id"`
	Applied    []AgentAction `json:"applied"`
}

// UndoResponse is returned after an undo request is recorded.
type UndoResponse struct {
	Success bool `json:"success"`
}

// RunDetail is a run together with its proposed actions.
type RunDetail struct {
	Run     AgentRun      `json:"run"`
	Actions []AgentAction `json:"actions"`
}

// ScheduledRunRequest is the optional body for POST /v1/agent/runs/scheduled.
type ScheduledRunRequest struct {
	StudentID    *uuid.UUID `json:"student_id,omitempty"`
	Objective    string     `json:"objective,omitempty"`
	ContextScope string     `json:"context_scope,omitempty"`
	Model        string     `json:"model,omitempty"`
}

// Validate checks the optional overrides when present.
func (r ScheduledRunRequest) Validate() error {
	if r.Objective != "" {
		if err := checkLen("objective", r.Objective, MinObjectiveLen, MaxObjectiveLen); err != nil {
			return err
		}
	}
	if r.ContextScope != "" {
		if err := checkLen("context_scope", r.ContextScope, MinContextScopeLen, MaxContextScopeLen); err != nil {
			return err
		}
	}
	if r.Model != "" {
		return checkLen("model", r.Model, MinModelLen, MaxModelLen)
	}
	return nil
}

// ScheduledRunResponse summarizes one autonomous pass.
type ScheduledRunResponse struct {
	RunID       uuid.UUID `json:"run_id"`
	Proposed    int       `json:"proposed"`
	AppliedSafe int       `json:"applied_safe"`
}

// BulkStatusRequest is the request body for POST /v1/logs/bulk-status.
type BulkStatusRequest struct {
	EntryIDs     []uuid.UUID `json:"entry_ids"`
	Status       EntryStatus `json:"status"`
	RejectReason *string     `json:"reject_reason,omitempty"`
}

// Validate checks the id list and the target status.
func (r BulkStatusRequest) Validate() error {
	if len(r.EntryIDs) == 0 {
		return fmt.Errorf("entry_ids must contain at least one id")
	}
	if len(r.EntryIDs) > MaxBulkEntries {
		return fmt.Errorf("entry_ids exceeds maximum of %d", MaxBulkEntries)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("status %q is not a valid entry status", r.Status)
	}
	if r.Status == EntryRejected && (r.RejectReason == nil || *r.RejectReason == "") {
		return fmt.Errorf("reject_reason is required when status is %s", EntryRejected)
	}
	return nil
}

// BulkStatusResponse reports how many entries a bulk status request changed.
type BulkStatusResponse struct {
	Updated int `json:"updated"`
}

// ResolveConflictRequest is the request body for POST /v1/sync/resolve-conflict.
type ResolveConflictRequest struct {
	ItemID     uuid.UUID       `json:"item_id"`
	Resolution json.RawMessage `json:"resolution"`
}

// Validate checks that an item is named and the resolution is a JSON object.
func (r ResolveConflictRequest) Validate() error {
	if r.ItemID == uuid.Nil {
		return fmt.Errorf("item_id is required")
	}
	trimmed := bytes.TrimSpace(r.Resolution)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("resolution must be a JSON object")
	}
	return nil
}

// AgentConfigResponse reports whether the generative backend is usable.
type AgentConfigResponse struct {
	GenerativeConfigured bool   `json:"generative_configured"`
	Model                string `json:"model"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Store    string `json:"store"`
	Postgres string `json:"postgres,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}

func checkLen(field, v string, lo, hi int) error {
	n := utf8.RuneCountInString(v)
	if n < lo {
		return fmt.Errorf("%s must be at least %d characters", field, lo)
	}
	if n > hi {
		return fmt.Errorf("%s exceeds maximum length of %d characters", field, hi)
	}
	return nil
}
