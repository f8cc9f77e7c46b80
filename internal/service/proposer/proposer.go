// Package proposer turns a student's domain state into a list of proposed
// agent actions.
//
// A generative Backend is consulted when configured. Its output is decoded
// against a closed schema and discarded on any mismatch, in which case a
// deterministic heuristic produces the proposal instead. Propose never fails:
// a run always ends up with at least one action.
package proposer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/houra-app/houra/internal/guardrails"
	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/telemetry"
)

// Context payload bounds sent to the backend.
const (
	MaxContextEntries    = 25
	MaxContextSyncItems  = 25
	MaxContextShareLinks = 10
)

// Action count bounds.
const (
	MaxGenerativeActions = 12
	MaxFallbackActions   = 4
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 20 * time.Second

// Source records where a proposal came from.
type Source string

const (
	SourceGenerative Source = "generative"
	SourceFallback   Source = "fallback"
)

// Request is what a Backend receives.
type Request struct {
	Model   string
	Context Payload
}

// Payload is the bounded view of the run and the student's state that is
// sent to the backend.
type Payload struct {
	Objective    string                `json:"objective"`
	ContextScope string                `json:"contextScope"`
	Entries      []model.ServiceEntry  `json:"entries"`
	SyncQueue    []model.SyncQueueItem `json:"syncQueue"`
	ShareLinks   []model.ShareLink     `json:"shareLinks"`
}

// Backend generates raw proposal text for a request.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Proposal is the outcome of Propose.
type Proposal struct {
	Actions []model.AgentAction
	Source  Source
}

// Proposer produces action proposals for agent runs.
type Proposer struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	fallbacks       metric.Int64Counter
	backendDuration metric.Float64Histogram
}

// New creates a Proposer. backend may be nil, in which case every proposal
// comes from the heuristic. A non-positive timeout selects DefaultTimeout.
func New(backend Backend, timeout time.Duration, logger *slog.Logger) *Proposer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	meter := telemetry.Meter("houra/proposer")
	fallbacks, _ := meter.Int64Counter("houra.agent.fallbacks",
		metric.WithDescription("Proposals produced by the heuristic instead of the backend"),
	)
	backendDur, _ := meter.Float64Histogram("houra.proposer.backend.duration",
		metric.WithDescription("Time spent waiting for the generative backend (ms)"),
		metric.WithUnit("ms"),
	)
	return &Proposer{
		backend:         backend,
		timeout:         timeout,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
		fallbacks:       fallbacks,
		backendDuration: backendDur,
	}
}

// Generative reports whether a backend is configured.
func (p *Proposer) Generative() bool { return p.backend != nil }

// Propose returns the actions for run given the student's state. It only
// reads state.
func (p *Proposer) Propose(ctx context.Context, run model.AgentRun, state model.DomainState) Proposal {
	if p.backend != nil {
		actions, reason := p.generate(ctx, run, state)
		if actions != nil {
			return Proposal{Actions: actions, Source: SourceGenerative}
		}
		p.logger.Warn("proposer: generative output rejected, using fallback",
			"run_id", run.ID, "reason", reason)
		p.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
	return Proposal{Actions: p.fallback(run, state), Source: SourceFallback}
}

// generate calls the backend and decodes its output. On any failure it
// returns nil actions and a short reason.
func (p *Proposer) generate(ctx context.Context, run model.AgentRun, state model.DomainState) ([]model.AgentAction, string) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.backend.Generate(callCtx, Request{Model: run.Model, Context: buildPayload(run, state)})
	p.backendDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		p.logger.Debug("proposer: backend call failed", "run_id", run.ID, "error", err)
		if callCtx.Err() != nil {
			return nil, "timeout"
		}
		return nil, "backend_error"
	}

	candidates, err := decodeCandidates(raw)
	if err != nil {
		p.logger.Debug("proposer: decode failed", "run_id", run.ID, "error", err)
		return nil, "decode"
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("houra.proposer.generated", len(candidates)))

	now := p.now()
	actions := make([]model.AgentAction, 0, len(candidates))
	for _, c := range candidates {
		actions = append(actions, newAction(run.ID, c.ActionKind, c.TargetEntity, c.targetID, c.Title, c.Detail, c.diff, now))
	}
	return actions, ""
}

// buildPayload bounds the state to what the backend may see.
func buildPayload(run model.AgentRun, state model.DomainState) Payload {
	return Payload{
		Objective:    run.Objective,
		ContextScope: run.ContextScope,
		Entries:      head(state.Entries, MaxContextEntries),
		SyncQueue:    head(state.SyncQueue, MaxContextSyncItems),
		ShareLinks:   head(state.ShareLinks, MaxContextShareLinks),
	}
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// newAction builds a proposed action. The safety class always comes from
// guardrails, whatever the producer claimed.
func newAction(runID uuid.UUID, kind model.ActionKind, entity model.EntityType, target uuid.UUID, title, detail string, diff []byte, now time.Time) model.AgentAction {
	return model.AgentAction{
		ID:           uuid.New(),
		RunID:        runID,
		ActionType:   model.ActionTypePropose,
		ActionKind:   kind,
		SafetyClass:  guardrails.Classify(kind),
		TargetEntity: entity,
		TargetID:     target,
		Title:        title,
		Detail:       detail,
		Diff:         diff,
		Approved:     false,
		CreatedAt:    now,
	}
}
