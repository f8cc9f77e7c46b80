package proposer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
)

func TestFallback_PriorityOrder(t *testing.T) {
	p := newTestProposer(nil)
	run := testRun()

	pending := model.ServiceEntry{ID: uuid.New(), ActivityName: "Tutoring", Status: model.EntryPendingReview}
	laterPending := model.ServiceEntry{ID: uuid.New(), ActivityName: "Cleanup", Status: model.EntryPendingReview}
	synced := model.SyncQueueItem{ID: uuid.New(), Status: model.SyncSynced}
	failed := model.SyncQueueItem{ID: uuid.New(), Status: model.SyncFailed}
	revokedAt := fixedNow.Add(-time.Hour)
	revoked := model.ShareLink{ID: uuid.New(), ExpiresAt: fixedNow.Add(-2 * time.Hour), RevokedAt: &revokedAt}
	live := model.ShareLink{ID: uuid.New(), ExpiresAt: fixedNow.Add(time.Hour)}
	expired := model.ShareLink{ID: uuid.New(), ExpiresAt: fixedNow.Add(-time.Minute)}

	state := model.DomainState{
		Organizations: []model.Organization{{ID: uuid.New()}},
		Entries:       []model.ServiceEntry{{ID: uuid.New(), Status: model.EntryDraft}, pending, laterPending},
		SyncQueue:     []model.SyncQueueItem{synced, failed},
		ShareLinks:    []model.ShareLink{revoked, live, expired},
	}

	actions := p.fallback(run, state)
	require.Len(t, actions, 3)

	assert.Equal(t, model.ActionStatusNormalization, actions[0].ActionKind)
	assert.Equal(t, model.EntityServiceEntry, actions[0].TargetEntity)
	assert.Equal(t, pending.ID, actions[0].TargetID, "first pending entry wins")
	assert.Equal(t, "Verify Tutoring", actions[0].Title)
	assert.JSONEq(t, `{"status":"Pending Review->Verified"}`, string(actions[0].Diff))

	assert.Equal(t, model.ActionSyncRetry, actions[1].ActionKind)
	assert.Equal(t, failed.ID, actions[1].TargetID)
	assert.JSONEq(t, `{"status":"Failed->Uploading"}`, string(actions[1].Diff))

	assert.Equal(t, model.ActionShareLinkChange, actions[2].ActionKind)
	assert.Equal(t, expired.ID, actions[2].TargetID)
	assert.Equal(t, model.SafetyDangerous, actions[2].SafetyClass)

	for _, a := range actions {
		assert.Equal(t, run.ID, a.RunID)
		assert.Equal(t, model.ActionTypePropose, a.ActionType)
		assert.False(t, a.Approved)
	}
	assert.LessOrEqual(t, len(actions), MaxFallbackActions)
}

func TestFallback_DedupWhenNothingUrgent(t *testing.T) {
	p := newTestProposer(nil)
	org := model.Organization{ID: uuid.New()}
	state := model.DomainState{
		Organizations: []model.Organization{org, {ID: uuid.New()}},
		Entries:       []model.ServiceEntry{{ID: uuid.New(), Status: model.EntryVerified}},
		SyncQueue:     []model.SyncQueueItem{{ID: uuid.New(), Status: model.SyncSynced}},
		ShareLinks:    []model.ShareLink{{ID: uuid.New(), ExpiresAt: fixedNow.Add(time.Hour)}},
	}

	actions := p.fallback(testRun(), state)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionDedupMetadata, actions[0].ActionKind)
	assert.Equal(t, model.EntityOrganization, actions[0].TargetEntity)
	assert.Equal(t, org.ID, actions[0].TargetID)
	assert.Equal(t, model.SafetySafe, actions[0].SafetyClass)
}

func TestFallback_EmptyStateStillProposes(t *testing.T) {
	actions := newTestProposer(nil).fallback(testRun(), model.DomainState{})
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionDedupMetadata, actions[0].ActionKind)
	assert.NotEqual(t, uuid.Nil, actions[0].TargetID, "a fresh id stands in for the missing organization")
}

func TestFallback_LinkExpiringNowIsNotExpired(t *testing.T) {
	state := model.DomainState{ShareLinks: []model.ShareLink{{ID: uuid.New(), ExpiresAt: fixedNow}}}
	actions := newTestProposer(nil).fallback(testRun(), state)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionDedupMetadata, actions[0].ActionKind)
}
