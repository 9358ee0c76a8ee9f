package journal

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the journal tables.
// Each statement uses IF NOT EXISTS so reopening an existing journal is safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		command     TEXT NOT NULL DEFAULT '',
		concurrency INTEGER NOT NULL DEFAULT 0,
		retries     INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS requests (
		run_id      TEXT NOT NULL,
		request_id  TEXT NOT NULL,
		method      TEXT NOT NULL,
		url         TEXT NOT NULL,
		priority    TEXT NOT NULL,
		status      TEXT NOT NULL,
		attempts    INTEGER NOT NULL DEFAULT 0,
		http_status INTEGER NOT NULL DEFAULT 0,
		bytes       INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error_kind  TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		settled_at  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_run_id ON requests(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_settled_at ON requests(settled_at)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
