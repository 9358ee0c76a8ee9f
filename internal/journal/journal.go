// Package journal persists settled requests to SQLite so later invocations
// can report on past fetch activity.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Run groups the requests settled by one queue invocation.
type Run struct {
	ID          string
	Command     string
	Concurrency int
	Retries     int
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Entry is one settled request.
type Entry struct {
	RunID      string
	RequestID  string
	Method     string
	URL        string
	Priority   string
	Status     string
	Attempts   int
	HTTPStatus int
	Bytes      int
	Duration   time.Duration
	ErrorKind  string
	Error      string
	SettledAt  time.Time
}

// Summary aggregates the settled requests of one run.
type Summary struct {
	RunID     string
	Requests  int
	Succeeded int
	Failed    int
	Attempts  int
	Bytes     int64
	// WaitTotal sums per-request time from enqueue to settlement. The wall
	// clock time of the run is shorter when requests overlap.
	WaitTotal time.Duration
	// Failures counts failed requests by failure kind.
	Failures map[string]int
}

// Journal is an append-only log of settled requests backed by SQLite.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the journal database at path. Use ":memory:" for
// an in-memory journal (useful in tests).
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &Journal{
		db:     db,
		logger: logger.With("component", "journal"),
	}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Migrate creates all required tables and indexes.
func (j *Journal) Migrate(ctx context.Context) error {
	j.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, j.db)
}

// --- Run lifecycle ---

// BeginRun records the start of a queue invocation.
func (j *Journal) BeginRun(ctx context.Context, run *Run) error {
	j.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	var finishedAt *string
	if run.FinishedAt != nil {
		v := run.FinishedAt.Format(time.RFC3339Nano)
		finishedAt = &v
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, concurrency, retries, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Concurrency, run.Retries,
		run.StartedAt.Format(time.RFC3339Nano), finishedAt,
	)
	return err
}

// FinishRun stamps the end of a run.
func (j *Journal) FinishRun(ctx context.Context, id string, at time.Time) error {
	j.logger.Debug("sql", "op", "update", "table", "runs", "id", id)

	result, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		at.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun returns a run by id, or nil if the journal has no such run.
func (j *Journal) GetRun(ctx context.Context, id string) (*Run, error) {
	j.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	return scanRun(j.db.QueryRowContext(ctx,
		`SELECT id, command, concurrency, retries, started_at, finished_at
		 FROM runs WHERE id = ?`, id))
}

// LastRun returns the most recently started run, or nil for an empty journal.
func (j *Journal) LastRun(ctx context.Context) (*Run, error) {
	j.logger.Debug("sql", "op", "select_last", "table", "runs")

	return scanRun(j.db.QueryRowContext(ctx,
		`SELECT id, command, concurrency, retries, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`))
}

// ListRuns returns up to limit runs, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	j.logger.Debug("sql", "op", "list", "table", "runs", "limit", limit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, command, concurrency, retries, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Request entries ---

// Record appends settled requests to the journal in one transaction.
func (j *Journal) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	j.logger.Debug("sql", "op", "insert", "table", "requests", "count", len(entries))

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO requests (run_id, request_id, method, url, priority, status,
			 attempts, http_status, bytes, duration_ms, error_kind, error, settled_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.RunID, e.RequestID, e.Method, e.URL, e.Priority, e.Status,
			e.Attempts, e.HTTPStatus, e.Bytes, e.Duration.Milliseconds(),
			e.ErrorKind, e.Error, e.SettledAt.Format(time.RFC3339Nano),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Filter narrows List results. Zero values leave a dimension unconstrained.
type Filter struct {
	RunID  string
	Status string
	Limit  int
}

// List returns settled requests matching the filter, newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]*Entry, error) {
	j.logger.Debug("sql", "op", "list", "table", "requests", "run_id", f.RunID, "status", f.Status)
	if f.Limit <= 0 {
		f.Limit = 100
	}

	// Build WHERE clause dynamically based on filters.
	var whereClauses []string
	var args []any

	if f.RunID != "" {
		whereClauses = append(whereClauses, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Status != "" {
		whereClauses = append(whereClauses, "status = ?")
		args = append(args, f.Status)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query := `SELECT run_id, request_id, method, url, priority, status,
		attempts, http_status, bytes, duration_ms, error_kind, error, settled_at
		FROM requests` + whereSQL + ` ORDER BY settled_at DESC, rowid DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		var settledAt string

		if err := rows.Scan(&e.RunID, &e.RequestID, &e.Method, &e.URL, &e.Priority, &e.Status,
			&e.Attempts, &e.HTTPStatus, &e.Bytes, &durationMS, &e.ErrorKind, &e.Error, &settledAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.SettledAt, _ = time.Parse(time.RFC3339Nano, settledAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Summarize aggregates the settled requests of one run.
func (j *Journal) Summarize(ctx context.Context, runID string) (*Summary, error) {
	j.logger.Debug("sql", "op", "summarize", "table", "requests", "run_id", runID)

	s := &Summary{RunID: runID, Failures: make(map[string]int)}
	var waitMS int64

	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'DONE' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(attempts), 0),
		        COALESCE(SUM(bytes), 0),
		        COALESCE(SUM(duration_ms), 0)
		 FROM requests WHERE run_id = ?`, runID,
	).Scan(&s.Requests, &s.Succeeded, &s.Failed, &s.Attempts, &s.Bytes, &waitMS)
	if err != nil {
		return nil, err
	}
	s.WaitTotal = time.Duration(waitMS) * time.Millisecond

	rows, err := j.db.QueryContext(ctx,
		`SELECT error_kind, COUNT(*) FROM requests
		 WHERE run_id = ? AND status = 'FAILED' GROUP BY error_kind`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		s.Failures[kind] = n
	}
	return s, rows.Err()
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt *string

	err := row.Scan(&run.ID, &run.Command, &run.Concurrency, &run.Retries, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	return &run, nil
}
