package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/storage"
	"github.com/houra-app/houra/internal/storage/memory"
	"github.com/houra-app/houra/internal/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.SeedableStore { return memory.New() })
}

func TestInTx_Serializes(t *testing.T) {
	s := memory.New()
	f := storetest.Seed(t, s)
	ctx := context.Background()

	// Each tx reads the retry count and writes count+1 through a failure
	// record. Lost updates would leave the final count below n.
	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, f.Student.ID, func(tx storage.Tx) error {
				return tx.RecordSyncFailure(ctx, f.Student.ID, f.Item.ID, "retry", time.Now())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := s.GetStateForStudent(ctx, f.Student.ID)
	require.NoError(t, err)
	assert.Equal(t, n, state.SyncQueue[0].RetryCount)
}

func TestInTx_CanceledContext(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.InTx(ctx, uuid.New(), func(storage.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestPutStudent_Upserts(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, s.PutStudent(ctx, model.Student{ID: id, Approved: false}))
	require.NoError(t, s.PutStudent(ctx, model.Student{ID: id, Approved: true}))

	got, err := s.ListActiveStudents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}
