// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a key-value store backed in-memory, by JSON file,
// by SQLite or by PostgreSQL.
package store

import (
	"context"
	"errors"
)

// Store is a generic interface for a key-value store.
type Store interface {
	// Get retrieves a value for a given key.
	// It must return (nil, nil) if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value for a given key.
	Set(ctx context.Context, key string, value []byte) error
	// Update atomically replaces the value for a given key with the result of
	// f. f receives nil if the key is not found. If f returns an error,
	// nothing is stored and Update returns that error. Concurrent updates of
	// the same key never interleave.
	Update(ctx context.Context, key string, f func(old []byte) ([]byte, error)) error
	// Close closes the store and releases any resources.
	Close() error
}

// ErrUnknownBackend is returned by [Open] for an unsupported backend name.
var ErrUnknownBackend = errors.New("store: unknown backend")

// Open opens a store of the named backend. For "json" and "sqlite" dsn is a
// file path, for "postgres" it's a database URL and for "mem" it's ignored.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch backend {
	case "mem":
		return NewMemStore(), nil
	case "json":
		return NewJSONFile(dsn)
	case "sqlite":
		return NewSQLiteStore(ctx, dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	}
	return nil, errors.Join(ErrUnknownBackend, errors.New(backend))
}
