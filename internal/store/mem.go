// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory implementation of the [Store] interface.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemStore creates a new empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Get retrieves a value for a given key.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	// Return a copy to prevent the caller from mutating the store.
	return append([]byte(nil), v...), nil
}

// Set stores a value for a given key.
func (s *MemStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Update atomically replaces the value for a given key.
func (s *MemStore) Update(_ context.Context, key string, f func([]byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var old []byte
	if v, ok := s.data[key]; ok {
		old = append([]byte(nil), v...)
	}
	v, err := f(old)
	if err != nil {
		return err
	}
	s.data[key] = append([]byte(nil), v...)
	return nil
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error { return nil }
