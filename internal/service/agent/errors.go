package agent

import "errors"

// Validation errors. Callers map these to 4xx responses.
var (
	ErrInvalidInput     = errors.New("agent: invalid input")
	ErrRunNotFound      = errors.New("agent: run not found")
	ErrNoActions        = errors.New("agent: no applicable actions selected")
	ErrSnapshotNotFound = errors.New("agent: snapshot not found")
)

// ErrApprovalRequired is returned when dangerous actions are selected
// without explicit approval. Nothing is applied.
var ErrApprovalRequired = errors.New("dangerous actions require approval")

// ErrRunFailed is returned when a run could not be proposed or persisted.
var ErrRunFailed = errors.New("agent run failed")

// ErrApplyFailed is returned when an apply could not be committed. The
// batch has been rolled back.
var ErrApplyFailed = errors.New("agent: apply failed")

// IsValidation reports whether err is a caller error rather than a failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrNoActions) ||
		errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrApprovalRequired)
}
