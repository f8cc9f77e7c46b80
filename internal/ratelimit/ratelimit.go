// Package ratelimit throttles expensive endpoints per caller.
//
// houra ships an in-memory token bucket (MemoryLimiter). The Limiter
// interface is the contract, so a shared backend can replace it when several
// instances serve the same students.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. Keys are opaque;
	// callers build them (e.g. "run:student:<uuid>"). An error signals a
	// limiter malfunction and callers fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
