// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of the [Store] interface.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new [PostgresStore] and connects to the database.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		);
	`); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Get retrieves a value for a given key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	return postgresGet(ctx, s.pool, key)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func postgresGet(ctx context.Context, q pgQuerier, key string) ([]byte, error) {
	var data []byte
	err := q.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1;`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

const postgresUpsert = `
	INSERT INTO kv (key, value)
	VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE
	SET value = excluded.value;
`

// Set stores a value for a given key.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, postgresUpsert, key, nonNil(value))
	return err
}

// Update atomically replaces the value for a given key. A transaction-scoped
// advisory lock on the key serializes updates, including the ones racing to
// create a missing key.
func (s *PostgresStore) Update(ctx context.Context, key string, f func([]byte) ([]byte, error)) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, key); err != nil {
			return err
		}
		old, err := postgresGet(ctx, tx, key)
		if err != nil {
			return err
		}
		v, err := f(old)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, postgresUpsert, key, nonNil(v))
		return err
	})
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
