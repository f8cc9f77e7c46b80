// Package storetest is a behavioral test suite every storage.Store
// implementation must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
)

// SeedableStore is a Store that can also be loaded with fixtures.
type SeedableStore interface {
	storage.Store
	storage.Seeder
}

// base is a fixed, microsecond-aligned instant so round trips through
// timestamptz compare equal.
var base = time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

// Run executes the suite. newStore must return an empty, isolated store.
func Run(t *testing.T, newStore func(t *testing.T) SeedableStore) {
	t.Run("StateIsScopedAndOrdered", func(t *testing.T) { testStateScopedAndOrdered(t, newStore(t)) })
	t.Run("RunLifecycle", func(t *testing.T) { testRunLifecycle(t, newStore(t)) })
	t.Run("ActionsKeepOrderAndApplyOnce", func(t *testing.T) { testActions(t, newStore(t)) })
	t.Run("SnapshotsAreScoped", func(t *testing.T) { testSnapshots(t, newStore(t)) })
	t.Run("TxRollsBackOnError", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("Mutations", func(t *testing.T) { testMutations(t, newStore(t)) })
	t.Run("ResolveSyncConflict", func(t *testing.T) { testResolveSyncConflict(t, newStore(t)) })
	t.Run("AuditFilters", func(t *testing.T) { testAudit(t, newStore(t)) })
	t.Run("ActiveStudents", func(t *testing.T) { testActiveStudents(t, newStore(t)) })
}

// Fixture is a seeded student with one record of each kind.
type Fixture struct {
	Student model.Student
	Org     model.Organization
	Entry   model.ServiceEntry
	Link    model.ShareLink
	Item    model.SyncQueueItem
}

// Seed inserts a student with one organization, a pending entry, an expired
// share link and a queued sync item.
func Seed(t *testing.T, s storage.Seeder) Fixture {
	t.Helper()
	ctx := context.Background()
	f := Fixture{}
	f.Student = model.Student{ID: uuid.New(), Name: "Ada", Email: "ada@example.com", Approved: true, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.PutStudent(ctx, f.Student))

	f.Org = model.Organization{ID: uuid.New(), StudentID: f.Student.ID, Name: "Food Bank", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.PutOrganization(ctx, f.Org))

	f.Entry = model.ServiceEntry{
		ID: uuid.New(), StudentID: f.Student.ID, OrganizationID: f.Org.ID,
		ActivityName: "Sorting", StartAt: base.Add(-3 * time.Hour), EndAt: base.Add(-time.Hour),
		DurationMinutes: 120, Status: model.EntryPendingReview, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.PutServiceEntry(ctx, f.Entry))

	f.Link = model.ShareLink{
		ID: uuid.New(), StudentID: f.Student.ID, TokenHash: uuid.NewString(),
		ExpiresAt: base.Add(-time.Hour), CreatedAt: base.Add(-48 * time.Hour),
	}
	require.NoError(t, s.PutShareLink(ctx, f.Link))

	f.Item = model.SyncQueueItem{
		ID: uuid.New(), StudentID: f.Student.ID, EntityType: model.EntityServiceEntry,
		EntityID: f.Entry.ID, Operation: model.ActionTypeUpdate, Payload: json.RawMessage(`{"status":"Pending Review"}`),
		Status: model.SyncQueued, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.PutSyncQueueItem(ctx, f.Item))
	return f
}

func testStateScopedAndOrdered(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	other := Seed(t, s)

	newer := f.Entry
	newer.ID = uuid.New()
	newer.StartAt = f.Entry.StartAt.Add(time.Hour)
	require.NoError(t, s.PutServiceEntry(ctx, newer))

	archivedAt := base
	archived := f.Entry
	archived.ID = uuid.New()
	archived.ArchivedAt = &archivedAt
	require.NoError(t, s.PutServiceEntry(ctx, archived))

	state, err := s.GetStateForStudent(ctx, f.Student.ID)
	require.NoError(t, err)
	require.Len(t, state.Entries, 2, "archived entries are excluded")
	assert.Equal(t, newer.ID, state.Entries[0].ID, "entries are newest first")
	assert.Equal(t, f.Entry.ID, state.Entries[1].ID)
	require.Len(t, state.Organizations, 1)
	assert.Equal(t, f.Org.ID, state.Organizations[0].ID)
	require.Len(t, state.ShareLinks, 1)
	assert.Equal(t, f.Link.ID, state.ShareLinks[0].ID)
	require.Len(t, state.SyncQueue, 1)
	assert.Equal(t, f.Item.ID, state.SyncQueue[0].ID)
	assert.JSONEq(t, `{"status":"Pending Review"}`, string(state.SyncQueue[0].Payload))

	otherState, err := s.GetStateForStudent(ctx, other.Student.ID)
	require.NoError(t, err)
	require.Len(t, otherState.Entries, 1)
	assert.Equal(t, other.Entry.ID, otherState.Entries[0].ID)
}

func newRun(studentID uuid.UUID, at time.Time) model.AgentRun {
	return model.AgentRun{
		ID: uuid.New(), StudentID: studentID, Model: model.DefaultModel,
		Objective: "tidy logs", ContextScope: "dashboard",
		Status: model.RunStatusAwaitingApproval, CreatedAt: at, UpdatedAt: at,
	}
}

func testRunLifecycle(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	other := Seed(t, s)

	first := newRun(f.Student.ID, base)
	second := newRun(f.Student.ID, base.Add(time.Minute))
	require.NoError(t, s.CreateRun(ctx, first))
	require.NoError(t, s.CreateRun(ctx, second))

	got, err := s.GetRun(ctx, f.Student.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Objective, got.Objective)
	assert.Equal(t, model.RunStatusAwaitingApproval, got.Status)

	_, err = s.GetRun(ctx, other.Student.ID, first.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "runs are invisible to other students")

	runs, err := s.ListRuns(ctx, f.Student.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)

	paged, err := s.ListRuns(ctx, f.Student.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, first.ID, paged[0].ID)

	later := base.Add(time.Hour)
	require.NoError(t, s.UpdateRunStatus(ctx, first.ID, model.RunStatusApplied, later))
	got, err = s.GetRun(ctx, f.Student.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusApplied, got.Status)
	assert.True(t, later.Equal(got.UpdatedAt))

	assert.ErrorIs(t, s.UpdateRunStatus(ctx, uuid.New(), model.RunStatusApplied, later), storage.ErrNotFound)
}

func newAction(runID uuid.UUID, kind model.ActionKind, target model.EntityType, targetID uuid.UUID) model.AgentAction {
	return model.AgentAction{
		ID: uuid.New(), RunID: runID, ActionType: model.ActionTypePropose, ActionKind: kind,
		SafetyClass: model.SafetySafe, TargetEntity: target, TargetID: targetID,
		Title: string(kind), Diff: json.RawMessage(`{"k":"v"}`), CreatedAt: base,
	}
}

func testActions(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	run := newRun(f.Student.ID, base)
	require.NoError(t, s.CreateRun(ctx, run))

	actions := []model.AgentAction{
		newAction(run.ID, model.ActionSyncRetry, model.EntitySyncQueueItem, f.Item.ID),
		newAction(run.ID, model.ActionStatusNormalization, model.EntityServiceEntry, f.Entry.ID),
		newAction(run.ID, model.ActionDedupMetadata, model.EntityOrganization, f.Org.ID),
	}
	require.NoError(t, s.CreateActions(ctx, actions))

	got, err := s.ListActionsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range actions {
		assert.Equal(t, actions[i].ID, got[i].ID, "proposal order is preserved")
		assert.False(t, got[i].Applied())
	}
	assert.JSONEq(t, `{"k":"v"}`, string(got[0].Diff))

	at := base.Add(time.Minute)
	require.NoError(t, s.MarkActionApplied(ctx, actions[1].ID, at))
	got, err = s.ListActionsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got[1].Approved)
	assert.Equal(t, model.ActionTypeApply, got[1].ActionType)
	require.NotNil(t, got[1].AppliedAt)
	assert.True(t, at.Equal(*got[1].AppliedAt))

	err = s.MarkActionApplied(ctx, actions[1].ID, at.Add(time.Minute))
	assert.ErrorIs(t, err, storage.ErrAlreadyApplied)
	assert.ErrorIs(t, s.MarkActionApplied(ctx, uuid.New(), at), storage.ErrNotFound)
}

func testSnapshots(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	other := Seed(t, s)

	snap := model.StateSnapshot{
		ID: uuid.New(), StudentID: f.Student.ID, BatchID: uuid.New(),
		Data:      model.SnapshotData{ActionIDs: []uuid.UUID{uuid.New(), uuid.New()}, At: base},
		CreatedAt: base,
	}
	require.NoError(t, s.CreateSnapshot(ctx, snap))

	got, err := s.GetSnapshot(ctx, f.Student.ID, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.BatchID, got.BatchID)
	assert.Equal(t, snap.Data.ActionIDs, got.Data.ActionIDs)
	assert.True(t, base.Equal(got.Data.At))

	_, err = s.GetSnapshot(ctx, other.Student.ID, snap.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testTxRollback(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	boom := errors.New("boom")

	rolledBack := newRun(f.Student.ID, base)
	err := s.InTx(ctx, f.Student.ID, func(tx storage.Tx) error {
		if err := tx.CreateRun(ctx, rolledBack); err != nil {
			return err
		}
		if err := tx.SetEntryStatus(ctx, f.Student.ID, f.Entry.ID, model.EntryVerified, nil, base); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetRun(ctx, f.Student.ID, rolledBack.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "run from a failed tx must not persist")
	state, err := s.GetStateForStudent(ctx, f.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryPendingReview, state.Entries[0].Status, "mutation from a failed tx must not persist")

	committed := newRun(f.Student.ID, base)
	require.NoError(t, s.InTx(ctx, f.Student.ID, func(tx storage.Tx) error {
		if err := tx.CreateRun(ctx, committed); err != nil {
			return err
		}
		// Reads inside the tx see its own writes.
		_, err := tx.GetRun(ctx, f.Student.ID, committed.ID)
		return err
	}))
	_, err = s.GetRun(ctx, f.Student.ID, committed.ID)
	assert.NoError(t, err)
}

func testMutations(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	other := Seed(t, s)
	at := base.Add(time.Hour)

	reason := "no signature"
	require.NoError(t, s.SetEntryStatus(ctx, f.Student.ID, f.Entry.ID, model.EntryRejected, &reason, at))
	require.NoError(t, s.RevokeShareLink(ctx, f.Student.ID, f.Link.ID, at))
	require.NoError(t, s.RevokeShareLink(ctx, f.Student.ID, f.Link.ID, at.Add(time.Hour)))
	require.NoError(t, s.RecordSyncFailure(ctx, f.Student.ID, f.Item.ID, "503 from upstream", at))

	state, err := s.GetStateForStudent(ctx, f.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryRejected, state.Entries[0].Status)
	require.NotNil(t, state.Entries[0].RejectReason)
	assert.Equal(t, reason, *state.Entries[0].RejectReason)
	assert.True(t, at.Equal(state.Entries[0].UpdatedAt))
	require.NotNil(t, state.ShareLinks[0].RevokedAt)
	assert.True(t, at.Equal(*state.ShareLinks[0].RevokedAt), "second revoke keeps the first timestamp")
	assert.Equal(t, model.SyncFailed, state.SyncQueue[0].Status)
	assert.Equal(t, 1, state.SyncQueue[0].RetryCount)
	require.NotNil(t, state.SyncQueue[0].LastError)

	require.NoError(t, s.SetEntryStatus(ctx, f.Student.ID, f.Entry.ID, model.EntryVerified, &reason, at))
	require.NoError(t, s.SetSyncItemStatus(ctx, f.Student.ID, f.Item.ID, model.SyncUploading, at))
	state, err = s.GetStateForStudent(ctx, f.Student.ID)
	require.NoError(t, err)
	assert.Nil(t, state.Entries[0].RejectReason, "reject reason only sticks to Rejected")
	assert.Equal(t, model.SyncUploading, state.SyncQueue[0].Status)
	assert.Equal(t, 1, state.SyncQueue[0].RetryCount)

	// Cross-tenant writes behave as if the target does not exist.
	assert.ErrorIs(t, s.SetEntryStatus(ctx, other.Student.ID, f.Entry.ID, model.EntryVerified, nil, at), storage.ErrNotFound)
	assert.ErrorIs(t, s.RevokeShareLink(ctx, other.Student.ID, f.Link.ID, at), storage.ErrNotFound)
	assert.ErrorIs(t, s.SetSyncItemStatus(ctx, other.Student.ID, f.Item.ID, model.SyncSynced, at), storage.ErrNotFound)
	assert.ErrorIs(t, s.RecordSyncFailure(ctx, other.Student.ID, f.Item.ID, "x", at), storage.ErrNotFound)
}

func testResolveSyncConflict(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	other := Seed(t, s)
	at := base.Add(time.Hour)
	resolution := json.RawMessage(`{"status":"Verified"}`)

	_, err := s.ResolveSyncConflict(ctx, f.Student.ID, f.Item.ID, resolution, at)
	assert.ErrorIs(t, err, storage.ErrNotInConflict, "a queued item has nothing to resolve")

	require.NoError(t, s.RecordSyncFailure(ctx, f.Student.ID, f.Item.ID, "409 from upstream", at))
	require.NoError(t, s.SetSyncItemStatus(ctx, f.Student.ID, f.Item.ID, model.SyncConflict, at))

	_, err = s.ResolveSyncConflict(ctx, other.Student.ID, f.Item.ID, resolution, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.ResolveSyncConflict(ctx, f.Student.ID, uuid.New(), resolution, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	resolved, err := s.ResolveSyncConflict(ctx, f.Student.ID, f.Item.ID, resolution, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, f.Item.ID, resolved.ID)
	assert.Equal(t, model.SyncQueued, resolved.Status)
	assert.Equal(t, 0, resolved.RetryCount)
	assert.Nil(t, resolved.LastError)
	assert.JSONEq(t, string(resolution), string(resolved.Payload))
	assert.True(t, at.Add(time.Minute).Equal(resolved.UpdatedAt))

	state, err := s.GetStateForStudent(ctx, f.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueued, state.SyncQueue[0].Status)
	assert.JSONEq(t, string(resolution), string(state.SyncQueue[0].Payload))

	_, err = s.ResolveSyncConflict(ctx, f.Student.ID, f.Item.ID, resolution, at)
	assert.ErrorIs(t, err, storage.ErrNotInConflict, "resolving twice is rejected")
}

func testAudit(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	f := Seed(t, s)
	other := Seed(t, s)
	corr := uuid.New()
	actorID := "houra-agent"
	snapID := uuid.New()

	events := []model.AuditEvent{
		{ID: uuid.New(), StudentID: f.Student.ID, Timestamp: base, ActorType: model.ActorAIAgent, ActorID: &actorID,
			Source: model.SourceAgent, EntityType: model.EntityAgentRun, EntityID: uuid.New(),
			ActionType: model.ActionTypeCreate, After: json.RawMessage(`{"status":"Awaiting Approval"}`), CorrelationID: corr},
		{ID: uuid.New(), StudentID: f.Student.ID, Timestamp: base.Add(time.Second), ActorType: model.ActorAIAgent, ActorID: &actorID,
			Source: model.SourceAgent, EntityType: model.EntityAgentAction, EntityID: uuid.New(),
			ActionType: model.ActionTypePropose, Diff: json.RawMessage(`{"status":"Verified"}`), CorrelationID: corr},
		{ID: uuid.New(), StudentID: f.Student.ID, Timestamp: base.Add(2 * time.Second), ActorType: model.ActorStudent,
			Source: model.SourceUI, EntityType: model.EntityAgentAction, EntityID: uuid.New(),
			ActionType: model.ActionTypeApply, CorrelationID: corr, SnapshotID: &snapID},
		{ID: uuid.New(), StudentID: other.Student.ID, Timestamp: base, ActorType: model.ActorStudent,
			Source: model.SourceUI, EntityType: model.EntityShareLink, EntityID: uuid.New(),
			ActionType: model.ActionTypeUpdate, CorrelationID: uuid.New()},
	}
	for _, e := range events {
		require.NoError(t, s.InsertAuditEvent(ctx, e))
	}

	all, err := s.ListAuditEvents(ctx, f.Student.ID, model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3, "other students' events are excluded")
	assert.Equal(t, events[2].ID, all[0].ID, "newest first")
	require.NotNil(t, all[0].SnapshotID)
	assert.Equal(t, snapID, *all[0].SnapshotID)
	assert.Nil(t, all[0].ActorID)
	assert.Empty(t, all[0].Diff)

	agentOnly, err := s.ListAuditEvents(ctx, f.Student.ID, model.AuditFilter{ActorType: model.ActorAIAgent})
	require.NoError(t, err)
	assert.Len(t, agentOnly, 2)

	proposals, err := s.ListAuditEvents(ctx, f.Student.ID, model.AuditFilter{
		EntityType: model.EntityAgentAction, ActionType: model.ActionTypePropose,
	})
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.JSONEq(t, `{"status":"Verified"}`, string(proposals[0].Diff))

	limited, err := s.ListAuditEvents(ctx, f.Student.ID, model.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testActiveStudents(t *testing.T, s SeedableStore) {
	ctx := context.Background()
	older := model.Student{ID: uuid.New(), Approved: true, CreatedAt: base, UpdatedAt: base}
	newer := model.Student{ID: uuid.New(), Approved: true, CreatedAt: base, UpdatedAt: base.Add(time.Hour)}
	pending := model.Student{ID: uuid.New(), Approved: false, CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour)}
	for _, st := range []model.Student{older, newer, pending} {
		require.NoError(t, s.PutStudent(ctx, st))
	}

	got, err := s.ListActiveStudents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)

	one, err := s.ListActiveStudents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
