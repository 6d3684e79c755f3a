package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropcare/internal/types"
)

type failingRateLimitStore struct{}

func (failingRateLimitStore) IncrementAndCheck(context.Context, string, int, time.Duration) (RateLimitResult, error) {
	return RateLimitResult{}, errors.New("store unavailable")
}

type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func rateLimitedHandler(srv *Server, limit int) http.Handler {
	return srv.RateLimit(limit, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func requestAs(account, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/assessments", nil)
	req.RemoteAddr = remote
	if account != "" {
		req = req.WithContext(types.WithAccount(req.Context(), account))
	}
	return req
}

func TestRateLimit_AllowsThenRejects(t *testing.T) {
	srv := &Server{Logger: discardLogger(), RateLimitStore: NewMemoryRateLimitStore(nil)}
	handler := rateLimitedHandler(srv, 2)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestAs("farm-1", "10.0.0.1:1234"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("farm-1", "10.0.0.1:1234"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeRateLimited))
}

func TestRateLimit_KeysByAccountThenAddress(t *testing.T) {
	srv := &Server{Logger: discardLogger(), RateLimitStore: NewMemoryRateLimitStore(nil)}
	handler := rateLimitedHandler(srv, 1)

	cases := []*http.Request{
		requestAs("farm-1", "10.0.0.1:1"),
		requestAs("farm-2", "10.0.0.1:1"),
		requestAs("", "10.0.0.1:1"),
		requestAs("", "10.0.0.2:1"),
	}
	for _, req := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestAs("", "10.0.0.2:9999"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimit_PassThroughWhenDisabled(t *testing.T) {
	tests := []struct {
		name  string
		store RateLimitStore
		limit int
	}{
		{"no store", nil, 1},
		{"zero limit", NewMemoryRateLimitStore(nil), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := &Server{Logger: discardLogger(), RateLimitStore: tc.store}
			handler := rateLimitedHandler(srv, tc.limit)
			for i := 0; i < 3; i++ {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, requestAs("farm-1", "10.0.0.1:1"))
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
			}
		})
	}
}

func TestRateLimit_FailsOpenOnStoreError(t *testing.T) {
	srv := &Server{Logger: discardLogger(), RateLimitStore: failingRateLimitStore{}}

	rec := httptest.NewRecorder()
	rateLimitedHandler(srv, 1).ServeHTTP(rec, requestAs("farm-1", "10.0.0.1:1"))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMemoryRateLimitStore_WindowResets(t *testing.T) {
	clock := &mutableClock{now: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryRateLimitStore(clock)
	ctx := context.Background()

	first, err := store.IncrementAndCheck(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 0, first.Remaining)
	assert.Equal(t, clock.now.Add(time.Minute), first.ResetAt)

	second, err := store.IncrementAndCheck(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, second.Allowed)

	clock.now = clock.now.Add(time.Minute)
	third, err := store.IncrementAndCheck(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, third.Allowed)
	assert.Equal(t, clock.now.Add(time.Minute), third.ResetAt)
}

func TestMemoryRateLimitStore_DropsExpiredWindows(t *testing.T) {
	clock := &mutableClock{now: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryRateLimitStore(clock)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := store.IncrementAndCheck(ctx, key, 5, time.Minute)
		require.NoError(t, err)
	}
	require.Len(t, store.windows, 3)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err := store.IncrementAndCheck(ctx, "d", 5, time.Minute)
	require.NoError(t, err)
	assert.Len(t, store.windows, 1)
}
