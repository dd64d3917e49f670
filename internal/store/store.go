// Package store implements the durable persistence backing (C4's
// on-disk half): an append-only message and tool-call log, ordered
// scans over both, a key/value table for project/global memory
// entries, and the PatternRun snapshots the Mission Supervisor (C7)
// reads back on restart. Everything goes through database/sql against
// github.com/mattn/go-sqlite3, one file per process.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/macaron-software/agentcore/internal/corerr"
)

const component = "store"

// Store wraps the sqlite3 connection every other accessor in this
// package hangs methods off of.
type Store struct {
	db *sql.DB
}

// schema statements execute one at a time — sqlite3's driver rejects a
// single Exec carrying more than one statement.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		status TEXT NOT NULL,
		current_phase TEXT NOT NULL,
		brief TEXT NOT NULL,
		workspace_path TEXT NOT NULL,
		project_ref TEXT,
		phase_states TEXT NOT NULL,
		resume_attempts INTEGER NOT NULL DEFAULT 0,
		paused_by_user BOOLEAN NOT NULL DEFAULT 0,
		needs_human BOOLEAN NOT NULL DEFAULT 0,
		last_error TEXT,
		usage_input_tokens INTEGER NOT NULL DEFAULT 0,
		usage_output_tokens INTEGER NOT NULL DEFAULT 0,
		usage_cost_usd REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at)`,

	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		run_id TEXT NOT NULL,
		phase_id TEXT NOT NULL,
		from_agent TEXT NOT NULL,
		to_agent TEXT,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		parent_id TEXT,
		priority INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_run_phase ON messages(run_id, phase_id, seq)`,
	// lightweight substring index for the text-search surface; sqlite3
	// as vendored here has no FTS5 build tag, so this is a plain column
	// index backing a LIKE scan rather than a virtual full-text table.
	`CREATE INDEX IF NOT EXISTS idx_messages_content ON messages(content)`,

	`CREATE TABLE IF NOT EXISTS tool_calls (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		arguments_digest TEXT,
		result_summary TEXT,
		success BOOLEAN NOT NULL,
		duration_ms INTEGER NOT NULL,
		error_kind TEXT,
		timestamp TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_calls_run ON tool_calls(run_id, seq)`,

	`CREATE TABLE IF NOT EXISTS memory_entries (
		scope TEXT NOT NULL,
		ref TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		author_agent TEXT,
		confidence REAL NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (scope, ref, key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_entries_content ON memory_entries(value)`,

	`CREATE TABLE IF NOT EXISTS verdicts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		phase_id TEXT NOT NULL,
		verdict TEXT NOT NULL,
		rationale TEXT,
		violations TEXT,
		escalation_flag BOOLEAN NOT NULL DEFAULT 0,
		recorded_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id, seq)`,
}

const currentSchemaVersion = 1

// Open creates (or reuses) the sqlite3 database at path and brings its
// schema up to date. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, corerr.New(component, "Open", corerr.ErrStorageUnavailable, "open sqlite3 database", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 serializes writers anyway; one conn avoids "database is locked"

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return corerr.New(component, "initSchema", corerr.ErrStorageUnavailable, "apply schema statement", err)
		}
	}

	var version int
	row := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`)
	switch err := row.Scan(&version); err {
	case sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return corerr.New(component, "initSchema", corerr.ErrStorageUnavailable, "seed schema_version", err)
		}
	case nil:
		// no migrations registered yet; a future schema bump compares
		// version here and runs ALTER TABLE statements before rewriting it.
	default:
		return corerr.New(component, "initSchema", corerr.ErrStorageUnavailable, "read schema_version", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
