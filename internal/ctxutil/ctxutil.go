// Package ctxutil provides shared context key accessors.
//
// This package exists to break the circular dependency between server and mcp:
// server imports mcp for MCP server setup, and mcp needs to read the caller's
// identity from the context that server's auth middleware populates. Both
// packages import ctxutil instead of each other.
package ctxutil

import (
	"context"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/auth"
)

type contextKey string

const (
	keyIdentity  contextKey = "identity"
	keyRequestID contextKey = "request_id"
)

// WithIdentity returns a new context carrying the verified caller identity.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, keyIdentity, id)
}

// IdentityFromContext extracts the caller identity, if any.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	v, ok := ctx.Value(keyIdentity).(auth.Identity)
	return v, ok
}

// StudentIDFromContext returns the caller's student id, or uuid.Nil.
func StudentIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.StudentID
	}
	return uuid.Nil
}

// WithRequestID returns a new context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}
