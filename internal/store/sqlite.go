// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/tailscale/sqlite"
)

// SQLiteStore is a SQLite implementation of the [Store] interface.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new [SQLiteStore] and connects to the database.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+dsn)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers, which makes Update atomic
	// without relying on SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		) STRICT;`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Get retrieves a value for a given key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	return sqliteGet(ctx, s.db, key)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteGet(ctx context.Context, q queryRower, key string) ([]byte, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?;`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

const sqliteUpsert = `
	INSERT INTO kv (key, value)
	VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE
	SET value = excluded.value;
`

// Set stores a value for a given key.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsert, key, nonNil(value))
	return err
}

// Update atomically replaces the value for a given key.
func (s *SQLiteStore) Update(ctx context.Context, key string, f func([]byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	old, err := sqliteGet(ctx, tx, key)
	if err != nil {
		return err
	}
	v, err := f(old)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqliteUpsert, key, nonNil(v)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nonNil keeps NOT NULL columns happy when storing empty values.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
