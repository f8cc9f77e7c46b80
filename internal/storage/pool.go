// Package storage provides the persistence layer for houra.
//
// Store is implemented twice: DB is backed by PostgreSQL through pgxpool and
// is what production runs; the memory subpackage keeps everything in process
// for development and tests. Both honor the same transaction contract.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Retry policy for serializable transactions.
const (
	txMaxRetries = 3
	txBaseDelay  = 10 * time.Millisecond
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// queries implements Tx against any querier.
type queries struct {
	q querier
}

// DB wraps a pgxpool.Pool. Methods promoted from queries run on the pool and
// autocommit; InTx runs them on a transaction instead.
type DB struct {
	queries
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*DB)(nil)

// New creates a new DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, maxConns int32, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{
		queries: queries{q: pool},
		pool:    pool,
		logger:  logger,
	}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close(_ context.Context) {
	db.pool.Close()
}

// InTx runs fn in a serializable transaction while holding an advisory lock
// on the student. The lock is taken at session level before the transaction
// starts so that the transaction snapshot already includes the previous
// holder's commit. Serialization failures and deadlocks are retried with
// backoff; any other error rolls back and is returned as is.
func (db *DB) InTx(ctx context.Context, studentID uuid.UUID, fn func(tx Tx) error) error {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("storage: acquire conn: %w", err)
	}
	defer conn.Release()

	key := studentID.String()
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("storage: lock student: %w", err)
	}
	defer func() {
		unlockCtx := context.WithoutCancel(ctx)
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			// A connection still holding the lock must not go back to the pool.
			db.logger.Warn("storage: unlock student failed, discarding connection", "error", err)
			_ = conn.Conn().Close(unlockCtx)
		}
	}()

	return WithRetry(ctx, txMaxRetries, txBaseDelay, func() error {
		tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("storage: begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(queries{q: tx}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit tx: %w", err)
		}
		return nil
	})
}
