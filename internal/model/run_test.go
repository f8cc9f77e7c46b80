package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
)

func TestRunStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to model.RunStatus
		want     bool
	}{
		{model.RunStatusQueued, model.RunStatusProposing, true},
		{model.RunStatusProposing, model.RunStatusAwaitingApproval, true},
		{model.RunStatusAwaitingApproval, model.RunStatusApplied, true},
		{model.RunStatusApplied, model.RunStatusApplied, true},
		{model.RunStatusQueued, model.RunStatusFailed, true},
		{model.RunStatusProposing, model.RunStatusFailed, true},
		{model.RunStatusAwaitingApproval, model.RunStatusFailed, true},

		{model.RunStatusQueued, model.RunStatusApplied, false},
		{model.RunStatusProposing, model.RunStatusQueued, false},
		{model.RunStatusApplied, model.RunStatusAwaitingApproval, false},
		{model.RunStatusApplied, model.RunStatusFailed, false},
		{model.RunStatusFailed, model.RunStatusQueued, false},
		{model.RunStatusFailed, model.RunStatusFailed, false},
		{model.RunStatus("bogus"), model.RunStatusProposing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestAgentRun_Transition(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	run := model.AgentRun{ID: uuid.New(), Status: model.RunStatusQueued, UpdatedAt: created}

	later := created.Add(time.Minute)
	require.NoError(t, run.Transition(model.RunStatusProposing, later))
	assert.Equal(t, model.RunStatusProposing, run.Status)
	assert.Equal(t, later, run.UpdatedAt)

	err := run.Transition(model.RunStatusApplied, later.Add(time.Minute))
	require.Error(t, err)
	assert.Equal(t, model.RunStatusProposing, run.Status, "rejected transition must not change status")
	assert.Equal(t, later, run.UpdatedAt)
}

func TestActionKind_Valid(t *testing.T) {
	for _, k := range model.ActionKinds {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, model.ActionKind("drop_table").Valid())
	assert.False(t, model.ActionKind("").Valid())
}

func TestShareLink_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, model.ShareLink{ExpiresAt: now}.Expired(now))
	assert.True(t, model.ShareLink{ExpiresAt: now.Add(-time.Second)}.Expired(now))
	assert.False(t, model.ShareLink{ExpiresAt: now.Add(time.Second)}.Expired(now))
}

func TestActor_Source(t *testing.T) {
	assert.Equal(t, model.SourceAgent, model.AgentActor.Source())
	assert.Equal(t, model.SourceSystem, model.Actor{Type: model.ActorSystem}.Source())
	assert.Equal(t, model.SourceUI, model.Actor{Type: model.ActorStudent}.Source())
}

func TestAuditFilter_Matches(t *testing.T) {
	e := model.AuditEvent{
		ActorType:  model.ActorAIAgent,
		EntityType: model.EntityAgentAction,
		ActionType: model.ActionTypePropose,
	}
	assert.True(t, model.AuditFilter{}.Matches(e))
	assert.True(t, model.AuditFilter{ActorType: model.ActorAIAgent, ActionType: model.ActionTypePropose}.Matches(e))
	assert.False(t, model.AuditFilter{ActorType: model.ActorStudent}.Matches(e))
	assert.False(t, model.AuditFilter{EntityType: model.EntityAgentRun}.Matches(e))
}
