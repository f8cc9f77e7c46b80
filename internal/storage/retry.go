package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATEs that mark a transaction as safe to re-run from scratch.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// IsRetriable reports whether err carries a transient conflict from Postgres.
func IsRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// WithRetry calls fn until it succeeds, fails with a non-retriable error, or
// maxRetries re-runs are used up. Delays double from baseDelay with up to
// one baseDelay of jitter.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !IsRetriable(err) || attempt == maxRetries {
			return err
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		t := time.NewTimer(delay + jitter)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
