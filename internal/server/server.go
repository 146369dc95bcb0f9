// Package server wires the HTTP routes around the rate limiting interceptor.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lowc1012/window-log-limiter/internal/log"
	"github.com/lowc1012/window-log-limiter/internal/store"
	"github.com/lowc1012/window-log-limiter/pkg/ratelimiter"
)

const RequestIDHeader = "X-Request-ID"

// NewRouter returns the service routes. Everything except /healthz goes
// through the rate limiter.
func NewRouter(limiterConfig *ratelimiter.Config, s store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", healthHandler(s))

	r.Group(func(r chi.Router) {
		r.Use(ratelimiter.Middleware(limiterConfig))
		r.Get("/api/v1/hello", HelloHandler)
		r.Get("/other-worlds", OtherWorldsHandler)
	})

	return r
}

func HelloHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("Hello, World!"))
}

func OtherWorldsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request successful"})
}

func healthHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pinger, ok := s.(store.Pinger)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			log.Logger().Warn("Store health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)))
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Logger().Info("Request served",
			zap.String("requestId", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remoteAddr", r.RemoteAddr),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
