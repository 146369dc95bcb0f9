package ratelimiter

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lowc1012/window-log-limiter/internal/log"
	limiter "github.com/lowc1012/window-log-limiter/internal/ratelimiter"
	"github.com/lowc1012/window-log-limiter/internal/ratelimiter/algorithm"
	"github.com/lowc1012/window-log-limiter/internal/utils"
)

const (
	rateLimitMaxRequests = "X-Ratelimit-Max-Requests"
	rateLimitState       = "X-Ratelimit-State"
	rateLimitRetryAfter  = "X-Ratelimit-Retry-After"
)

// Config defines the configuration for the rate limiter handler.
type Config struct {
	Extractor utils.Extractor
	Limiter   limiter.RateLimiter
	// FailOpen lets requests through when the limiter cannot evaluate them
	// (store down, corrupt log). The default is to answer with an error.
	FailOpen bool
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *Config
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler object performing rate limiting before
// sending the request to the wrapped handler. If the request is denied, or the limiter fails and
// FailOpen is off, the rate limiting handler answers the client and does not call the wrapped handler.
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *Config) http.Handler {
	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  config,
	}
}

// Middleware adapts NewHTTPRateLimiterHandler to router middleware chains.
func Middleware(config *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewHTTPRateLimiterHandler(next, config)
	}
}

func (h *httpRateLimiterHandler) writeResponse(writer http.ResponseWriter, status int, msg string, args ...interface{}) {
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writer.WriteHeader(status)
	if _, err := writer.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		log.Logger().Warn("Failed to write body to HTTP request", zap.Error(err))
	}
}

// ServeHTTP performs rate limiting with the configuration it was provided and if there were no errors
// and the request was allowed it is sent to the wrapped handler. It also adds rate limiting headers that will be
// sent to the client to make it aware of what state it is in terms of rate limiting.
func (h *httpRateLimiterHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	key, err := h.config.Extractor.Extract(request)
	if err != nil {
		h.writeResponse(writer, http.StatusBadRequest, "failed to collect rate limiting key from request: %v", err)
		return
	}

	result, err := h.config.Limiter.Run(request.Context(), &limiter.Request{
		Key: key,
	})
	if err != nil {
		log.Logger().Error("Failed to run rate limiting for request",
			zap.String("key", key), zap.Bool("failOpen", h.config.FailOpen), zap.Error(err))
		if h.config.FailOpen {
			h.handler.ServeHTTP(writer, request)
			return
		}
		status := http.StatusInternalServerError
		if algorithm.IsStoreUnavailable(err) {
			status = http.StatusServiceUnavailable
		}
		h.writeResponse(writer, status, "failed to run rate limiting for request")
		return
	}

	// set the rate limiting headers both on allow or deny results so the client knows what is going on
	writer.Header().Set(rateLimitMaxRequests, strconv.FormatUint(uint64(result.RequestLimit), 10))
	writer.Header().Set(rateLimitState, result.State.String())
	writer.Header().Set(rateLimitRetryAfter, strconv.FormatUint(uint64(result.RemainingTimeSec), 10))

	if result.State == limiter.Deny {
		if result.RemainingTimeSec > 0 {
			writer.Header().Set("Retry-After", strconv.FormatUint(uint64(result.RemainingTimeSec), 10))
		}
		h.writeResponse(writer, http.StatusTooManyRequests, "%s", ExceededMessage(result.RequestLimit, result.Window))
		return
	}

	// headers are already set, so the wrapped handler does not need to know about rate limiting.
	h.handler.ServeHTTP(writer, request)
}

// ExceededMessage is the body of a 429 answer.
func ExceededMessage(maxRequests uint32, window time.Duration) string {
	return fmt.Sprintf("You have exceeded the %d requests in %s hrs limit!",
		maxRequests, strconv.FormatFloat(window.Hours(), 'f', -1, 64))
}
