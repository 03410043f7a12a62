// Package sqlite persists the remote-id cache and connector state in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/homemade/crmsync/sync"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	namespace TEXT NOT NULL,
	entry_key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	PRIMARY KEY (namespace, entry_key)
);
CREATE TABLE IF NOT EXISTS state (
	namespace TEXT NOT NULL,
	entry_key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	PRIMARY KEY (namespace, entry_key)
);
`

// Store keeps cache entries and state per connector namespace.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Cache returns a sync.Cache scoped to namespace.
func (s *Store) Cache(namespace string) sync.Cache {
	return &table{db: s.db, name: "cache", namespace: namespace}
}

// State returns a sync.StateStore scoped to namespace.
func (s *Store) State(namespace string) sync.StateStore {
	return &stateTable{table{db: s.db, name: "state", namespace: namespace}}
}

type table struct {
	db        *sql.DB
	name      string
	namespace string
}

func (t *table) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := t.db.QueryRowContext(ctx,
		"SELECT value FROM "+t.name+" WHERE namespace = ? AND entry_key = ?", t.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s %s: %w", t.name, key, err)
	}
	return value, true, nil
}

func (t *table) Set(ctx context.Context, key, value string) error {
	_, err := t.db.ExecContext(ctx,
		"INSERT INTO "+t.name+" (namespace, entry_key, value) VALUES (?, ?, ?) "+
			"ON CONFLICT (namespace, entry_key) DO UPDATE SET value = excluded.value, "+
			"updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')",
		t.namespace, key, value)
	if err != nil {
		return fmt.Errorf("writing %s %s: %w", t.name, key, err)
	}
	return nil
}

type stateTable struct {
	table
}

func (t *stateTable) Get(ctx context.Context, key string) (string, error) {
	value, _, err := t.table.Get(ctx, key)
	return value, err
}
