package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorType identifies who performed an audited mutation.
type ActorType string

const (
	ActorStudent ActorType = "student"
	ActorAIAgent ActorType = "ai_agent"
	ActorSystem  ActorType = "system"
)

// Valid reports whether a is a known actor type.
func (a ActorType) Valid() bool {
	switch a {
	case ActorStudent, ActorAIAgent, ActorSystem:
		return true
	}
	return false
}

// Source is the surface a mutation originated from.
type Source string

const (
	SourceUI     Source = "ui"
	SourceAgent  Source = "agent"
	SourceSystem Source = "system"
)

// Actor is the identity attached to a mutation.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// Source maps the actor to the surface it acts through.
func (a Actor) Source() Source {
	switch a.Type {
	case ActorAIAgent:
		return SourceAgent
	case ActorSystem:
		return SourceSystem
	default:
		return SourceUI
	}
}

// AgentActor is the actor recorded for mutations the agent makes on its own.
var AgentActor = Actor{Type: ActorAIAgent, ID: "houra-agent"}

// AuditEvent is an append-only record of one state-affecting operation.
// Never mutated or deleted.
type AuditEvent struct {
	ID            uuid.UUID       `json:"id"`
	StudentID     uuid.UUID       `json:"student_id"`
	Timestamp     time.Time       `json:"timestamp"`
	ActorType     ActorType       `json:"actor_type"`
	ActorID       *string         `json:"actor_id,omitempty"`
	Source        Source          `json:"source"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      uuid.UUID       `json:"entity_id"`
	ActionType    ActionType      `json:"action_type"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
	Diff          json.RawMessage `json:"diff,omitempty"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	SnapshotID    *uuid.UUID      `json:"snapshot_id,omitempty"`
}

// AuditFilter narrows an audit listing. Empty fields match everything.
type AuditFilter struct {
	ActorType  ActorType
	EntityType EntityType
	ActionType ActionType
	Limit      int
}

// DefaultAuditLimit bounds audit listings when the caller gives no limit.
const DefaultAuditLimit = 500

// Matches reports whether e passes the filter's equality predicates.
func (f AuditFilter) Matches(e AuditEvent) bool {
	if f.ActorType != "" && e.ActorType != f.ActorType {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.ActionType != "" && e.ActionType != f.ActionType {
		return false
	}
	return true
}
