package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/testutil"
)

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("backend down") }
func (errLimiter) Close() error                                { return nil }

func serve(t *testing.T, mw func(http.Handler) http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/agent/runs", nil))
	return rec
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	m, _ := newTestLimiter(t, 0, 1)
	mw := Middleware(m, func(*http.Request) string { return "student:1" },
		func(*http.Request) string { return "req-9" }, testutil.TestLogger())

	assert.Equal(t, http.StatusNoContent, serve(t, mw).Code)

	rec := serve(t, mw)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-9", body.Meta.RequestID)
}

func TestMiddleware_EmptyKeySkips(t *testing.T) {
	m, _ := newTestLimiter(t, 0, 1)
	mw := Middleware(m, func(*http.Request) string { return "" }, nil, testutil.TestLogger())
	for range 3 {
		assert.Equal(t, http.StatusNoContent, serve(t, mw).Code)
	}
}

func TestMiddleware_FailsOpen(t *testing.T) {
	mw := Middleware(errLimiter{}, func(*http.Request) string { return "k" }, nil, testutil.TestLogger())
	assert.Equal(t, http.StatusNoContent, serve(t, mw).Code)
}
