// Package model defines the core domain types for houra.
//
// Types correspond directly to database tables and audit payloads. They use
// strong typing (UUIDs, time.Time, string enums) and avoid interface{}
// wherever possible.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of an agent run.
type RunStatus string

const (
	RunStatusQueued           RunStatus = "Queued"
	RunStatusProposing        RunStatus = "Proposing"
	RunStatusAwaitingApproval RunStatus = "Awaiting Approval"
	RunStatusApplied          RunStatus = "Applied"
	RunStatusFailed           RunStatus = "Failed"
)

// runStatusRank orders the forward path. Failed sits outside it.
var runStatusRank = map[RunStatus]int{
	RunStatusQueued:           0,
	RunStatusProposing:        1,
	RunStatusAwaitingApproval: 2,
	RunStatusApplied:          3,
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	if s == RunStatusFailed {
		return true
	}
	_, ok := runStatusRank[s]
	return ok
}

// CanTransitionTo reports whether a run may move from s to next.
//
// Transitions advance one step at a time along Queued → Proposing →
// AwaitingApproval → Applied. Applied may be re-entered when a later batch
// of the same run is applied. Failed is reachable from every state before
// Applied and is terminal.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s == RunStatusFailed {
		return false
	}
	if next == RunStatusFailed {
		return s != RunStatusApplied
	}
	from, ok := runStatusRank[s]
	if !ok {
		return false
	}
	to, ok := runStatusRank[next]
	if !ok {
		return false
	}
	if s == RunStatusApplied {
		return next == RunStatusApplied
	}
	return to == from+1
}

// AgentRun is one invocation of the agent against a student's data.
type AgentRun struct {
	ID           uuid.UUID `json:"id"`
	StudentID    uuid.UUID `json:"student_id"`
	Model        string    `json:"model"`
	Objective    string    `json:"objective"`
	ContextScope string    `json:"context_scope"`
	Status       RunStatus `json:"status"`
	Autonomous   bool      `json:"autonomous"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transition moves the run to next, stamping UpdatedAt. It returns an error
// and leaves the run untouched when the transition is not allowed.
func (r *AgentRun) Transition(next RunStatus, at time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("run %s: invalid status transition %q -> %q", r.ID, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = at
	return nil
}
