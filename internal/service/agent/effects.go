package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
)

// effectFunc applies one action's domain change through the transaction.
type effectFunc func(ctx context.Context, m storage.Mutator, studentID uuid.UUID, a model.AgentAction, at time.Time) error

// effect binds an action kind to the entity it mutates. A nil apply means
// the kind is recorded in the audit trail only.
type effect struct {
	entity model.EntityType
	apply  effectFunc
}

// effects maps every known action kind to its domain change. Kinds without a
// mutation are still listed so an unknown kind is always an error.
var effects = map[model.ActionKind]effect{
	model.ActionStatusNormalization: {
		entity: model.EntityServiceEntry,
		apply: func(ctx context.Context, m storage.Mutator, studentID uuid.UUID, a model.AgentAction, at time.Time) error {
			return m.SetEntryStatus(ctx, studentID, a.TargetID, model.EntryVerified, nil, at)
		},
	},
	model.ActionShareLinkChange: {
		entity: model.EntityShareLink,
		apply: func(ctx context.Context, m storage.Mutator, studentID uuid.UUID, a model.AgentAction, at time.Time) error {
			return m.RevokeShareLink(ctx, studentID, a.TargetID, at)
		},
	},
	model.ActionSyncRetry: {
		entity: model.EntitySyncQueueItem,
		apply: func(ctx context.Context, m storage.Mutator, studentID uuid.UUID, a model.AgentAction, at time.Time) error {
			return m.SetSyncItemStatus(ctx, studentID, a.TargetID, model.SyncUploading, at)
		},
	},
	model.ActionDedupMetadata:        {},
	model.ActionArchiveRecord:        {},
	model.ActionExportGeneration:     {},
	model.ActionBulkStatusTransition: {},
}

// applyEffect performs the domain change for a, if any. An action whose
// target entity does not match the kind's entity is audit-only.
func applyEffect(ctx context.Context, m storage.Mutator, studentID uuid.UUID, a model.AgentAction, at time.Time) error {
	e, ok := effects[a.ActionKind]
	if !ok {
		return fmt.Errorf("agent: no effect registered for action kind %q", a.ActionKind)
	}
	if e.apply == nil || a.TargetEntity != e.entity {
		return nil
	}
	if err := e.apply(ctx, m, studentID, a, at); err != nil {
		return fmt.Errorf("agent: apply %s to %s %s: %w", a.ActionKind, a.TargetEntity, a.TargetID, err)
	}
	return nil
}
