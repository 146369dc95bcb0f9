// Package memory provides an in-process store, used for local runs and tests.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/lowc1012/window-log-limiter/internal/store"
)

var (
	_ store.Store   = (*Store)(nil)
	_ store.Pinger  = (*Store)(nil)
	_ store.Deleter = (*Store)(nil)
	_ store.Swapper = (*Store)(nil)
)

type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = bytes.Clone(value)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

func (s *Store) CompareAndSwap(_ context.Context, key string, prev, next []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.values[key]
	if prev == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(current, prev) {
		return false, nil
	}

	s.values[key] = bytes.Clone(next)
	return true, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}
