// Package store defines the key-value contract the window tracker persists request logs through.
package store

import (
	"context"
	"errors"
)

// ErrForeignValue is returned when the key holds something the store cannot
// read back as a value, such as a Redis hash.
var ErrForeignValue = errors.New("foreign value at key")

// Store is the minimal contract: get and set opaque values by key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored at key. A missing key is reported with
	// found == false and a nil error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by stores that can report connection health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deleter is implemented by stores that can remove a key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Swapper is implemented by stores offering an atomic compare-and-swap.
// CompareAndSwap writes next only if the current value equals prev; a nil prev
// means the key must be absent. It reports whether the write happened.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)
}
