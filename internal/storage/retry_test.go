package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetriable(t *testing.T) {
	assert.True(t, IsRetriable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetriable(fmt.Errorf("storage: commit tx: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, IsRetriable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetriable(errors.New("boom")))
	assert.False(t, IsRetriable(nil))
}

func TestWithRetry_RetriesSerializationFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	assert.True(t, IsRetriable(err))
	assert.Equal(t, 3, calls, "one attempt plus two retries")
}

func TestWithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	sentinel := errors.New("validation")
	err := WithRetry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, 5, time.Second, func() error {
		return &pgconn.PgError{Code: "40001"}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
