package algorithm

import (
	"fmt"
	"math"
	"time"
)

// Serialization selects how concurrent evaluations of the same key are ordered.
type Serialization string

const (
	// SerializeNone reads and writes with no fencing; concurrent requests for
	// one key can overwrite each other's increments.
	SerializeNone Serialization = "none"
	// SerializeKeyLock holds an in-process lock per key for the whole
	// read-modify-write. It does not protect against other processes.
	SerializeKeyLock Serialization = "keylock"
	// SerializeCAS writes through the store's CompareAndSwap and recomputes
	// the decision from fresh state when a swap loses.
	SerializeCAS Serialization = "cas"
)

const defaultSwapAttempts = 3

// WindowConfig is immutable once built by NewWindowConfig.
type WindowConfig struct {
	windowSize  time.Duration
	maxRequests int
	logInterval time.Duration
}

// NewWindowConfig validates 0 < logInterval <= windowSize and
// 0 < maxRequests <= math.MaxUint32.
// Timestamps are kept in whole seconds, so both durations must be at least a second.
func NewWindowConfig(windowSize time.Duration, maxRequests int, logInterval time.Duration) (WindowConfig, error) {
	switch {
	case windowSize < time.Second:
		return WindowConfig{}, fmt.Errorf("%w: window size %s must be at least 1s", ErrInvalidConfiguration, windowSize)
	case logInterval < time.Second:
		return WindowConfig{}, fmt.Errorf("%w: log interval %s must be at least 1s", ErrInvalidConfiguration, logInterval)
	case logInterval > windowSize:
		return WindowConfig{}, fmt.Errorf("%w: log interval %s exceeds window size %s", ErrInvalidConfiguration, logInterval, windowSize)
	case maxRequests <= 0:
		return WindowConfig{}, fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidConfiguration, maxRequests)
	case uint64(maxRequests) > math.MaxUint32:
		return WindowConfig{}, fmt.Errorf("%w: max requests %d exceeds %d", ErrInvalidConfiguration, maxRequests, uint32(math.MaxUint32))
	}

	return WindowConfig{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		logInterval: logInterval,
	}, nil
}

func (c WindowConfig) WindowSize() time.Duration  { return c.windowSize }
func (c WindowConfig) MaxRequests() int           { return c.maxRequests }
func (c WindowConfig) LogInterval() time.Duration { return c.logInterval }

func (c WindowConfig) windowSeconds() int64   { return int64(c.windowSize / time.Second) }
func (c WindowConfig) intervalSeconds() int64 { return int64(c.logInterval / time.Second) }
