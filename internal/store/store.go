// Package store persists scheduler state (credential usage, the query
// cache, strategies, and discovery coverage counts) in a single SQLite
// database. Every exported method wraps failures in a PersistenceError:
// callers must never treat a storage failure as a soft miss, since that
// would corrupt quota accounting.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"venuescout/internal/logging"
)

// PersistenceError is a failed read or write of scheduler state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes the SQLite database at the given path, creating the
// directory and schema as needed.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logging.Store("store opened: %s", path)
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credential_usage (
		credential_id TEXT PRIMARY KEY,
		used_today INTEGER NOT NULL DEFAULT 0,
		last_reset_date TEXT NOT NULL,
		total_all_time INTEGER NOT NULL DEFAULT 0,
		disabled INTEGER NOT NULL DEFAULT 0,
		disabled_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS paid_usage (
		date TEXT PRIMARY KEY,
		queries_used INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS query_cache (
		query_hash TEXT PRIMARY KEY,
		normalized_query TEXT NOT NULL,
		original_query TEXT NOT NULL,
		executed_at DATETIME NOT NULL,
		results_count INTEGER NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_query_cache_expiry ON query_cache(expires_at);

	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		country TEXT NOT NULL,
		query_template TEXT NOT NULL,
		success_rate REAL NOT NULL DEFAULT 50,
		total_uses INTEGER NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '[]',
		deprecated_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_strategies_yield ON strategies(success_rate DESC, total_uses DESC);
	CREATE INDEX IF NOT EXISTS idx_strategies_scope ON strategies(platform, country);

	CREATE TABLE IF NOT EXISTS venues (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		chain TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL,
		city TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT '',
		discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_venues_city ON venues(country, city);
	CREATE INDEX IF NOT EXISTS idx_venues_chain ON venues(chain);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
