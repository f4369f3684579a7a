// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hyperjump/alexandria/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 1 - fragments table with (book, rank) index
const currentSchemaVersion = 1

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db      *sql.DB
	path    string
	retries int
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithBusyRetries sets how many times a write transaction is attempted when
// the database is locked. Values below 1 are ignored.
func WithBusyRetries(n int) Option {
	return func(s *SQLiteStorage) {
		if n > 0 {
			s.retries = n
		}
	}
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStorage{db: db, path: dbPath, retries: busyRetryAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dsn sets the pragmas through the connection string so that every pooled
// connection gets them, not only the first one. _txlock=immediate makes
// BEGIN take the write lock up front.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// WithTx runs fn in one IMMEDIATE transaction, retrying the whole attempt
// while the database is busy.
func (s *SQLiteStorage) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	err := retryOnBusy(ctx, s.retries, func() error {
		return s.runTx(ctx, fn)
	})
	if err != nil && isSQLiteBusy(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func (s *SQLiteStorage) runTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqliteTx{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetFragment returns a fragment by ID.
func (s *SQLiteStorage) GetFragment(ctx context.Context, id uuid.UUID) (*models.Fragment, error) {
	return getFragment(ctx, s.db, id)
}

// ListFragments returns all fragments of book ordered by rank.
func (s *SQLiteStorage) ListFragments(ctx context.Context, book uuid.UUID) ([]*models.Fragment, error) {
	return listFragments(ctx, s.db, book)
}

// CountFragments returns the total number of fragments.
func (s *SQLiteStorage) CountFragments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&count)
	return count, err
}

// CountBooks returns the number of distinct books owning at least one fragment.
func (s *SQLiteStorage) CountBooks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT book) FROM fragments`).Scan(&count)
	return count, err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
