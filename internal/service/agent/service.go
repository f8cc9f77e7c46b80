// Package agent runs the agent lifecycle: proposing actions for a student,
// applying an approved subset, and recording undo requests.
//
// Both the HTTP API and the MCP server delegate to this service. Every state
// change it makes is written together with its audit events in a single
// store transaction.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/proposer"
	"github.com/houra-app/houra/internal/storage"
	"github.com/houra-app/houra/internal/telemetry"
)

// Proposer produces actions for a run. *proposer.Proposer implements it.
type Proposer interface {
	Propose(ctx context.Context, run model.AgentRun, state model.DomainState) proposer.Proposal
}

// Service encapsulates agent business logic shared by HTTP and MCP handlers.
type Service struct {
	store    storage.Store
	proposer Proposer
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer

	runCounter     metric.Int64Counter
	appliedCounter metric.Int64Counter
	applyDuration  metric.Float64Histogram
}

// New creates an agent Service.
func New(store storage.Store, p Proposer, logger *slog.Logger) *Service {
	meter := telemetry.Meter("houra/agent")
	runs, _ := meter.Int64Counter("houra.agent.runs",
		metric.WithDescription("Agent runs by final status and proposal source"),
	)
	applied, _ := meter.Int64Counter("houra.agent.actions_applied",
		metric.WithDescription("Agent actions applied, by kind"),
	)
	applyDur, _ := meter.Float64Histogram("houra.agent.apply.duration",
		metric.WithDescription("Time to apply an action batch (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{
		store:          store,
		proposer:       p,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		tracer:         telemetry.Tracer("houra/agent"),
		runCounter:     runs,
		appliedCounter: applied,
		applyDuration:  applyDur,
	}
}

// auditEvent builds an event with the fields every audit record carries.
func auditEvent(studentID uuid.UUID, actor model.Actor, entity model.EntityType, entityID uuid.UUID, action model.ActionType, correlationID uuid.UUID, at time.Time) model.AuditEvent {
	e := model.AuditEvent{
		ID:            uuid.New(),
		StudentID:     studentID,
		Timestamp:     at,
		ActorType:     actor.Type,
		Source:        actor.Source(),
		EntityType:    entity,
		EntityID:      entityID,
		ActionType:    action,
		CorrelationID: correlationID,
	}
	if actor.ID != "" {
		id := actor.ID
		e.ActorID = &id
	}
	return e
}

// toJSON marshals v, returning nil for values that cannot be encoded.
func toJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func traceSpan(ctx context.Context) trace.Span { return trace.SpanFromContext(ctx) }
