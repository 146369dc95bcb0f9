package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	limiter "github.com/lowc1012/window-log-limiter/internal/ratelimiter"
	"github.com/lowc1012/window-log-limiter/internal/ratelimiter/algorithm"
	"github.com/lowc1012/window-log-limiter/internal/store/memory"
	"github.com/lowc1012/window-log-limiter/internal/utils"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

type stubLimiter struct {
	result *limiter.Result
	err    error
	keys   []string
}

func (s *stubLimiter) Run(_ context.Context, req *limiter.Request) (*limiter.Result, error) {
	s.keys = append(s.keys, req.Key)
	return s.result, s.err
}

func (s *stubLimiter) Type() limiter.Type {
	return limiter.SlidingLogLimiterType
}

func TestHTTPRateLimiterHandler_Scenario(t *testing.T) {
	cfg, err := algorithm.NewWindowConfig(time.Hour, 5, time.Hour)
	require.NoError(t, err)
	tracker, err := algorithm.NewWindowTracker(memory.New(), cfg)
	require.NoError(t, err)

	now := time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)
	handler := NewHTTPRateLimiterHandler(okHandler, &Config{
		Extractor: utils.NewRemoteAddrExtractor(),
		Limiter:   limiter.NewSlidingLogLimiter(tracker, func() time.Time { return now }),
	})

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/other-worlds", nil)
		req.RemoteAddr = "10.0.0.1:52311"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		rec := serve()
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "ok", rec.Body.String())
		assert.Equal(t, "5", rec.Header().Get(rateLimitMaxRequests))
		assert.Equal(t, "Allow", rec.Header().Get(rateLimitState))
	}

	now = now.Add(time.Second)
	rec := serve()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "You have exceeded the 5 requests in 1 hrs limit!", rec.Body.String())
	assert.Equal(t, "Deny", rec.Header().Get(rateLimitState))
	assert.Equal(t, "3599", rec.Header().Get(rateLimitRetryAfter))
	assert.Equal(t, "3599", rec.Header().Get("Retry-After"))

	now = now.Add(3600 * time.Second)
	rec = serve()
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPRateLimiterHandler_Errors(t *testing.T) {
	storeDown := fmt.Errorf("%w: get %q: %w", algorithm.ErrStoreUnavailable, "10.0.0.1", errors.New("dial tcp: connection refused"))
	corrupt := fmt.Errorf("key %q: %w", "10.0.0.1", algorithm.ErrCorruptState)

	var tests = []struct {
		name     string
		err      error
		failOpen bool
		wantCode int
	}{
		{name: "store unavailable fails closed", err: storeDown, wantCode: http.StatusServiceUnavailable},
		{name: "corrupt state fails closed", err: corrupt, wantCode: http.StatusInternalServerError},
		{name: "store unavailable fails open", err: storeDown, failOpen: true, wantCode: http.StatusOK},
		{name: "corrupt state fails open", err: corrupt, failOpen: true, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHTTPRateLimiterHandler(okHandler, &Config{
				Extractor: utils.NewRemoteAddrExtractor(),
				Limiter:   &stubLimiter{err: tt.err},
				FailOpen:  tt.failOpen,
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Empty(t, rec.Header().Get(rateLimitState))
		})
	}
}

func TestHTTPRateLimiterHandler_KeyExtraction(t *testing.T) {
	stub := &stubLimiter{result: &limiter.Result{State: limiter.Allow, RequestLimit: 5, Window: time.Hour}}
	handler := Middleware(&Config{
		Extractor: utils.NewHTTPHeadersExtractor("X-Api-Key"),
		Limiter:   stub,
	})(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.keys, "limiter must not run without a key")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Api-Key", "abc123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc123"}, stub.keys)
}

func TestExceededMessage(t *testing.T) {
	assert.Equal(t, "You have exceeded the 100 requests in 24 hrs limit!", ExceededMessage(100, 24*time.Hour))
	assert.Equal(t, "You have exceeded the 3 requests in 0.5 hrs limit!", ExceededMessage(3, 30*time.Minute))
}
