package algorithm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lowc1012/window-log-limiter/internal/log"
	"github.com/lowc1012/window-log-limiter/internal/store"
)

// Decision is the outcome of one evaluation. Retry is only set on reject.
type Decision struct {
	Admit bool
	Retry *RetryInfo
}

// RetryInfo carries what a caller needs to explain a reject.
type RetryInfo struct {
	MaxRequests      int
	WindowSize       time.Duration
	RequestsInWindow int
	// RetryAfter is when the oldest counted entry leaves the window.
	RetryAfter time.Duration
}

type Option func(*WindowTracker)

// WithPrune drops entries that fell out of the window before each write.
// Without it the stored log keeps every entry it ever had.
func WithPrune(prune bool) Option {
	return func(t *WindowTracker) {
		t.prune = prune
	}
}

func WithSerialization(mode Serialization) Option {
	return func(t *WindowTracker) {
		t.serialization = mode
	}
}

// WithSwapAttempts bounds how often SerializeCAS recomputes after losing a swap.
func WithSwapAttempts(n int) Option {
	return func(t *WindowTracker) {
		t.swapAttempts = n
	}
}

// WindowTracker decides admission from a per-key sliding-window request log
// kept in a store. Every call re-reads the store; nothing is cached.
type WindowTracker struct {
	store         store.Store
	cfg           WindowConfig
	prune         bool
	serialization Serialization
	swapAttempts  int
	locks         *keyLocks
	swapper       store.Swapper
}

func NewWindowTracker(s store.Store, cfg WindowConfig, opts ...Option) (*WindowTracker, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.maxRequests <= 0 {
		return nil, fmt.Errorf("%w: window config was not built with NewWindowConfig", ErrInvalidConfiguration)
	}

	t := &WindowTracker{
		store:         s,
		cfg:           cfg,
		serialization: SerializeNone,
		swapAttempts:  defaultSwapAttempts,
	}
	for _, opt := range opts {
		opt(t)
	}

	switch t.serialization {
	case SerializeNone, "":
		t.serialization = SerializeNone
	case SerializeKeyLock:
		t.locks = newKeyLocks()
	case SerializeCAS:
		swapper, ok := s.(store.Swapper)
		if !ok {
			return nil, fmt.Errorf("%w: store %T does not support compare-and-swap", ErrInvalidConfiguration, s)
		}
		if t.swapAttempts <= 0 {
			return nil, fmt.Errorf("%w: swap attempts must be positive, got %d", ErrInvalidConfiguration, t.swapAttempts)
		}
		t.swapper = swapper
	default:
		return nil, fmt.Errorf("%w: unknown serialization %q", ErrInvalidConfiguration, t.serialization)
	}

	return t, nil
}

func (t *WindowTracker) Config() WindowConfig {
	return t.cfg
}

// Evaluate decides whether the request from key at now is admitted and records
// it in the key's log when it is. Rejected requests leave the log untouched.
func (t *WindowTracker) Evaluate(ctx context.Context, key string, now time.Time) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("client key is required")
	}

	switch t.serialization {
	case SerializeKeyLock:
		unlock := t.locks.lock(key)
		defer unlock()
		return t.evaluateOnce(ctx, key, now)
	case SerializeCAS:
		return t.evaluateSwap(ctx, key, now)
	default:
		return t.evaluateOnce(ctx, key, now)
	}
}

func (t *WindowTracker) evaluateOnce(ctx context.Context, key string, now time.Time) (Decision, error) {
	current, found, err := t.load(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	decision, next, err := t.decide(key, current, found, now)
	if err != nil || next == nil {
		return decision, err
	}

	// The write outlives the caller: an abandoned request still gets counted.
	if err := t.store.Set(context.WithoutCancel(ctx), key, next); err != nil {
		log.Logger().Error("Failed to write request log", zap.String("key", key), zap.Error(err))
		return Decision{}, fmt.Errorf("%w: set %q: %w", ErrStoreUnavailable, key, err)
	}
	return decision, nil
}

func (t *WindowTracker) evaluateSwap(ctx context.Context, key string, now time.Time) (Decision, error) {
	for attempt := 1; attempt <= t.swapAttempts; attempt++ {
		current, found, err := t.load(ctx, key)
		if err != nil {
			return Decision{}, err
		}

		decision, next, err := t.decide(key, current, found, now)
		if err != nil || next == nil {
			return decision, err
		}

		var prev []byte
		if found {
			prev = current
		}
		swapped, err := t.swapper.CompareAndSwap(context.WithoutCancel(ctx), key, prev, next)
		if errors.Is(err, store.ErrForeignValue) {
			return Decision{}, fmt.Errorf("%w: key %q: %w", ErrCorruptState, key, err)
		}
		if err != nil {
			log.Logger().Error("Failed to swap request log", zap.String("key", key), zap.Error(err))
			return Decision{}, fmt.Errorf("%w: swap %q: %w", ErrStoreUnavailable, key, err)
		}
		if swapped {
			return decision, nil
		}
		log.Logger().Debug("Request log changed concurrently, recomputing",
			zap.String("key", key), zap.Int("attempt", attempt))
	}
	return Decision{}, fmt.Errorf("%w: %q after %d attempts", ErrContention, key, t.swapAttempts)
}

func (t *WindowTracker) load(ctx context.Context, key string) ([]byte, bool, error) {
	current, found, err := t.store.Get(ctx, key)
	if errors.Is(err, store.ErrForeignValue) {
		log.Logger().Error("Key holds a foreign value", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("%w: key %q: %w", ErrCorruptState, key, err)
	}
	if err != nil {
		log.Logger().Error("Failed to read request log", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("%w: get %q: %w", ErrStoreUnavailable, key, err)
	}
	return current, found, nil
}

// decide is the pure part of an evaluation. A nil next means nothing is written.
func (t *WindowTracker) decide(key string, current []byte, found bool, now time.Time) (Decision, []byte, error) {
	nowSec := now.Unix()

	if !found {
		next, err := EncodeRequestLog(RequestLog{{Timestamp: nowSec, Count: 1}})
		if err != nil {
			return Decision{}, nil, err
		}
		return Decision{Admit: true}, next, nil
	}

	requestLog, err := DecodeRequestLog(current)
	if err != nil {
		log.Logger().Error("Stored request log does not decode", zap.String("key", key), zap.Error(err))
		return Decision{}, nil, fmt.Errorf("key %q: %w", key, err)
	}

	windowStart := nowSec - t.cfg.windowSeconds()
	total := requestLog.CountSince(windowStart)

	if total >= t.cfg.maxRequests {
		retry := &RetryInfo{
			MaxRequests:      t.cfg.maxRequests,
			WindowSize:       t.cfg.windowSize,
			RequestsInWindow: total,
		}
		if oldest, ok := requestLog.OldestSince(windowStart); ok {
			if wait := oldest + t.cfg.windowSeconds() - nowSec; wait > 0 {
				retry.RetryAfter = time.Duration(wait) * time.Second
			}
		}
		return Decision{Retry: retry}, nil, nil
	}

	updated := requestLog.Record(nowSec, nowSec-t.cfg.intervalSeconds())
	if t.prune {
		updated = updated.Prune(windowStart)
	}

	next, err := EncodeRequestLog(updated)
	if err != nil {
		return Decision{}, nil, err
	}
	return Decision{Admit: true}, next, nil
}
