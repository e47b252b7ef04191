// Package memory provides an in-process storage.KV used by tests and
// ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/storefront/internal/storage"
)

var _ storage.KV = (*Store)(nil)

// Store is a mutex-guarded map implementation of storage.KV.
type Store struct {
	mu     sync.Mutex
	values map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Get implements storage.KV.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements storage.KV.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Remove implements storage.KV.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Ping implements storage.KV.
func (s *Store) Ping(context.Context) error {
	return nil
}
