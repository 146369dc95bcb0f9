package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	limiter "github.com/lowc1012/window-log-limiter/internal/ratelimiter"
	"github.com/lowc1012/window-log-limiter/internal/ratelimiter/algorithm"
	"github.com/lowc1012/window-log-limiter/internal/store"
	"github.com/lowc1012/window-log-limiter/internal/store/memory"
	"github.com/lowc1012/window-log-limiter/internal/utils"
	"github.com/lowc1012/window-log-limiter/pkg/ratelimiter"
)

func newTestRouter(t *testing.T, s store.Store, max int) http.Handler {
	t.Helper()
	cfg, err := algorithm.NewWindowConfig(time.Hour, max, time.Hour)
	require.NoError(t, err)
	tracker, err := algorithm.NewWindowTracker(s, cfg)
	require.NoError(t, err)

	return NewRouter(&ratelimiter.Config{
		Extractor: utils.NewRemoteAddrExtractor(),
		Limiter:   limiter.NewSlidingLogLimiter(tracker, time.Now),
	}, s)
}

func TestRouter_RateLimitsProtectedRoutes(t *testing.T) {
	router := newTestRouter(t, memory.New(), 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other-worlds", nil))
		codes = append(codes, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// the same client shares one budget across routes
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hello", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRouter_HealthIsNotRateLimited(t *testing.T) {
	router := newTestRouter(t, memory.New(), 1)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestRouter_HealthReportsStoreFailure(t *testing.T) {
	router := newTestRouter(t, downStore{memory.New()}, 1)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_KeepsIncomingRequestID(t *testing.T) {
	router := newTestRouter(t, memory.New(), 1)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}

type downStore struct {
	*memory.Store
}

func (downStore) Ping(context.Context) error {
	return errors.New("connection refused")
}
