package records

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage/memory"
	"github.com/houra-app/houra/internal/storage/storetest"
	"github.com/houra-app/houra/internal/testutil"
)

var now = time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store, storetest.Fixture) {
	t.Helper()
	store := memory.New()
	fx := storetest.Seed(t, store)
	svc := New(store, testutil.TestLogger())
	svc.now = func() time.Time { return now }
	return svc, store, fx
}

func studentActor(fx storetest.Fixture) model.Actor {
	return model.Actor{Type: model.ActorStudent, ID: "user-" + fx.Student.ID.String()[:8]}
}

func TestRevokeShareLink(t *testing.T) {
	svc, store, fx := newService(t)
	ctx := context.Background()

	link, err := svc.RevokeShareLink(ctx, fx.Student.ID, studentActor(fx), fx.Link.ID)
	require.NoError(t, err)
	require.NotNil(t, link.RevokedAt)
	assert.Equal(t, now, *link.RevokedAt)

	events, err := store.ListAuditEvents(ctx, fx.Student.ID, model.AuditFilter{EntityType: model.EntityShareLink})
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, model.ActionTypeUpdate, e.ActionType)
	assert.Equal(t, model.SourceUI, e.Source)
	assert.Equal(t, fx.Link.ID, e.EntityID)
	assert.NotEmpty(t, e.Before)
	assert.NotEmpty(t, e.After)
	assert.Equal(t, fx.Link.ID, e.CorrelationID)

	// A second revoke keeps the first timestamp.
	svc.now = func() time.Time { return now.Add(time.Hour) }
	link, err = svc.RevokeShareLink(ctx, fx.Student.ID, studentActor(fx), fx.Link.ID)
	require.NoError(t, err)
	assert.Equal(t, now, *link.RevokedAt)
}

func TestRevokeShareLink_OtherStudent(t *testing.T) {
	svc, store, fx := newService(t)
	_, err := svc.RevokeShareLink(context.Background(), uuid.New(), studentActor(fx), fx.Link.ID)
	require.ErrorIs(t, err, ErrNotFound)

	state, err := store.GetStateForStudent(context.Background(), fx.Student.ID)
	require.NoError(t, err)
	assert.Nil(t, state.ShareLinks[0].RevokedAt)
}

func TestBulkSetStatus(t *testing.T) {
	svc, store, fx := newService(t)
	ctx := context.Background()
	reason := "missing signature"

	n, err := svc.BulkSetStatus(ctx, fx.Student.ID, studentActor(fx), model.BulkStatusRequest{
		EntryIDs: []uuid.UUID{fx.Entry.ID}, Status: model.EntryRejected, RejectReason: &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	state, err := store.GetStateForStudent(ctx, fx.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryRejected, state.Entries[0].Status)
	require.NotNil(t, state.Entries[0].RejectReason)
	assert.Equal(t, reason, *state.Entries[0].RejectReason)

	events, err := store.ListAuditEvents(ctx, fx.Student.ID, model.AuditFilter{EntityType: model.EntityServiceEntry})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Diff), fx.Entry.ID.String())
	assert.Contains(t, string(events[0].Diff), `"count":1`)
}

func TestBulkSetStatus_AllOrNothing(t *testing.T) {
	svc, store, fx := newService(t)
	ctx := context.Background()

	_, err := svc.BulkSetStatus(ctx, fx.Student.ID, studentActor(fx), model.BulkStatusRequest{
		EntryIDs: []uuid.UUID{fx.Entry.ID, uuid.New()}, Status: model.EntryVerified,
	})
	require.ErrorIs(t, err, ErrNotFound)

	state, err := store.GetStateForStudent(ctx, fx.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryPendingReview, state.Entries[0].Status)

	events, err := store.ListAuditEvents(ctx, fx.Student.ID, model.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestBulkSetStatus_Invalid(t *testing.T) {
	svc, _, fx := newService(t)
	_, err := svc.BulkSetStatus(context.Background(), fx.Student.ID, studentActor(fx), model.BulkStatusRequest{
		EntryIDs: []uuid.UUID{fx.Entry.ID}, Status: model.EntryRejected,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func markConflict(t *testing.T, store *memory.Store, fx storetest.Fixture) {
	t.Helper()
	require.NoError(t, store.SetSyncItemStatus(context.Background(), fx.Student.ID, fx.Item.ID, model.SyncConflict, now))
}

func TestResolveSyncConflict(t *testing.T) {
	svc, store, fx := newService(t)
	ctx := context.Background()
	markConflict(t, store, fx)

	item, err := svc.ResolveSyncConflict(ctx, fx.Student.ID, studentActor(fx), model.ResolveConflictRequest{
		ItemID: fx.Item.ID, Resolution: json.RawMessage(`{"status":"Verified"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SyncQueued, item.Status)
	assert.JSONEq(t, `{"status":"Verified"}`, string(item.Payload))

	events, err := store.ListAuditEvents(ctx, fx.Student.ID, model.AuditFilter{ActionType: model.ActionTypeResolveConflict})
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, model.EntitySyncConflict, e.EntityType)
	assert.Equal(t, fx.Item.ID, e.EntityID)
	assert.Equal(t, fx.Item.ID, e.CorrelationID)
	assert.Equal(t, model.ActorStudent, e.ActorType)
	assert.Equal(t, model.SourceUI, e.Source)
	assert.Contains(t, string(e.Before), string(model.SyncConflict))
	assert.Contains(t, string(e.After), string(model.SyncQueued))
}

func TestResolveSyncConflict_NotInConflict(t *testing.T) {
	svc, store, fx := newService(t)
	ctx := context.Background()

	_, err := svc.ResolveSyncConflict(ctx, fx.Student.ID, studentActor(fx), model.ResolveConflictRequest{
		ItemID: fx.Item.ID, Resolution: json.RawMessage(`{}`),
	})
	require.ErrorIs(t, err, ErrNotInConflict)

	events, err := store.ListAuditEvents(ctx, fx.Student.ID, model.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, events, "a rejected resolution is not audited")
}

func TestResolveSyncConflict_Errors(t *testing.T) {
	svc, store, fx := newService(t)
	ctx := context.Background()
	markConflict(t, store, fx)

	_, err := svc.ResolveSyncConflict(ctx, fx.Student.ID, studentActor(fx), model.ResolveConflictRequest{
		ItemID: fx.Item.ID, Resolution: json.RawMessage(`"keep mine"`),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ResolveSyncConflict(ctx, fx.Student.ID, studentActor(fx), model.ResolveConflictRequest{
		ItemID: uuid.New(), Resolution: json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ResolveSyncConflict(ctx, uuid.New(), studentActor(fx), model.ResolveConflictRequest{
		ItemID: fx.Item.ID, Resolution: json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	state, err := store.GetStateForStudent(ctx, fx.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncConflict, state.SyncQueue[0].Status)
}
