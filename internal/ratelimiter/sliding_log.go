package ratelimiter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/lowc1012/window-log-limiter/internal/log"
	"github.com/lowc1012/window-log-limiter/internal/ratelimiter/algorithm"
)

const instrumentationName = "github.com/lowc1012/window-log-limiter/internal/ratelimiter"

var _ RateLimiter = &SlidingLogLimiter{}

// SlidingLogLimiter counts each client's requests in a trailing window, using a
// log of coalesced buckets stored per client key.
type SlidingLogLimiter struct {
	impl      *algorithm.WindowTracker
	now       func() time.Time
	decisions metric.Int64Counter
	failures  metric.Int64Counter
}

// NewSlidingLogLimiter wraps tracker; now is the clock the decisions are made against.
func NewSlidingLogLimiter(tracker *algorithm.WindowTracker, now func() time.Time) *SlidingLogLimiter {
	if now == nil {
		now = time.Now
	}

	meter := otel.Meter(instrumentationName)
	decisions, err := meter.Int64Counter("ratelimiter.decisions",
		metric.WithDescription("Admission decisions by state"))
	if err != nil {
		log.Logger().Warn("Failed to create decisions counter", zap.Error(err))
	}
	failures, err := meter.Int64Counter("ratelimiter.failures",
		metric.WithDescription("Evaluations that ended in an error"))
	if err != nil {
		log.Logger().Warn("Failed to create failures counter", zap.Error(err))
	}

	return &SlidingLogLimiter{
		impl:      tracker,
		now:       now,
		decisions: decisions,
		failures:  failures,
	}
}

func (l *SlidingLogLimiter) Type() Type {
	return SlidingLogLimiterType
}

func (l *SlidingLogLimiter) Run(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "SlidingLogLimiter.Run")
	defer span.End()

	cfg := l.impl.Config()
	result := &Result{
		RequestLimit: uint32(cfg.MaxRequests()),
		Window:       cfg.WindowSize(),
	}

	decision, err := l.impl.Evaluate(ctx, req.Key, l.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if l.failures != nil {
			l.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("error", errorKind(err))))
		}
		return nil, err
	}

	if decision.Admit {
		result.State = Allow
		log.Logger().Debug("Request admitted", zap.String("key", req.Key))
	} else {
		result.State = Deny
		result.RequestsInWindow = decision.Retry.RequestsInWindow
		result.RemainingTimeSec = uint32(decision.Retry.RetryAfter / time.Second)
		log.Logger().Warn("Request rejected",
			zap.String("key", req.Key),
			zap.Int("requestsInWindow", decision.Retry.RequestsInWindow),
			zap.Int("maxRequests", decision.Retry.MaxRequests),
			zap.Duration("retryAfter", decision.Retry.RetryAfter))
	}

	span.SetAttributes(attribute.String("ratelimit.state", result.State.String()))
	if l.decisions != nil {
		l.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", result.State.String())))
	}
	return result, nil
}

func errorKind(err error) string {
	switch {
	case algorithm.IsStoreUnavailable(err):
		return "store_unavailable"
	case algorithm.IsCorruptState(err):
		return "corrupt_state"
	case algorithm.IsContention(err):
		return "contention"
	default:
		return "other"
	}
}
