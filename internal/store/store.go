// Package store is the sqlite-backed durable layer: the selector cache's
// warm tier, the heal history prior, and the run store. Built on an
// sql.Open("sqlite3", dsn) bootstrap and a versioned, idempotent
// ALTER TABLE migration style,
// repurposed from knowledge-atom persistence to test-run persistence.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns one sqlite connection shared by the cache warm tier, heal
// history, and run store tables.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) the parent directory and sqlite file at path,
// applies the schema, and runs pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS selector_cache (
			cache_key TEXT PRIMARY KEY,
			selector TEXT NOT NULL,
			strategy TEXT NOT NULL,
			confidence REAL NOT NULL,
			stable INTEGER NOT NULL,
			dom_fingerprint TEXT,
			dom_skeleton TEXT,
			fail_streak INTEGER NOT NULL DEFAULT 0,
			hit_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS heal_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url_pattern TEXT NOT NULL,
			element TEXT NOT NULL,
			strategy TEXT NOT NULL,
			outcome TEXT NOT NULL,
			latency_ms INTEGER NOT NULL,
			heal_round INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_heal_history_lookup ON heal_history (url_pattern, element, strategy)`,
		`CREATE TABLE IF NOT EXISTS runs (
			req_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			verdict TEXT NOT NULL,
			steps_total INTEGER NOT NULL,
			steps_executed INTEGER NOT NULL,
			heal_rounds INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			rca_class TEXT,
			rca_detail TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			req_id TEXT NOT NULL REFERENCES runs(req_id),
			idx INTEGER NOT NULL,
			selector TEXT,
			strategy TEXT,
			action TEXT,
			value TEXT,
			latency_ms INTEGER,
			heal_round INTEGER,
			status TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS run_heal_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			req_id TEXT NOT NULL REFERENCES runs(req_id),
			step_idx INTEGER NOT NULL,
			round INTEGER NOT NULL,
			phase TEXT NOT NULL,
			strategy TEXT,
			outcome TEXT NOT NULL,
			latency_ms INTEGER,
			discovery_none INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS run_artifacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			req_id TEXT NOT NULL REFERENCES runs(req_id),
			path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			req_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			locked INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
