// Package store persists client identity, conversations and messages in a
// local SQLite database file (*.db3). Secret and message columns are sealed
// with the database encryption key.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: not found")

type Store struct {
	db     *sqlx.DB
	sealer *sealer
	path   string

	closeOnce sync.Once
}

// Open opens (creating if needed) the database at path and migrates it.
// key is the 32-byte database encryption key; nil stores plaintext.
func Open(ctx context.Context, path string, key []byte) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, sealer: s, path: path}, nil
}

// Exists reports whether a database file is present at path.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.db.Close() })
	return err
}

func (s *Store) Cursor(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.GetContext(ctx, &v, `SELECT value FROM cursors WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read cursor %s: %w", name, err)
	}
	return v, nil
}

// SetCursor advances the named cursor. A value lower than the stored one is ignored.
func (s *Store) SetCursor(ctx context.Context, name string, value int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursors (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = max(value, excluded.value)`, name, value)
	if err != nil {
		return fmt.Errorf("store: write cursor %s: %w", name, err)
	}
	return nil
}
