// Package storage persists run history in a local SQLite database so
// summaries survive daemon restarts and can be served to clients.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/timeboxd/timeboxd/internal/plan"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id         TEXT PRIMARY KEY,
    started_at     TEXT NOT NULL,
    finished_at    TEXT NOT NULL,
    tasks_fetched  INTEGER NOT NULL,
    events_created INTEGER NOT NULL,
    processed      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
    task_id    TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    planned    INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    event_id   TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL,
    task_id    TEXT NOT NULL,
    title      TEXT NOT NULL,
    start_at   TEXT NOT NULL,
    end_at     TEXT NOT NULL,
    overflow   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
`

// Store is the run-history database. Safe for concurrent use; the
// underlying *sql.DB serializes access.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists a run summary, replacing any earlier row with the
// same id.
func (s *Store) RecordRun(ctx context.Context, sum *plan.Summary) error {
	processed, err := json.Marshal(sum.Processed)
	if err != nil {
		return fmt.Errorf("storage: encode processed tasks: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO runs (run_id, started_at, finished_at, tasks_fetched, events_created, processed)
        VALUES (?, ?, ?, ?, ?, ?)
    `, sum.RunID, sum.StartedAt.Format(time.RFC3339), sum.FinishedAt.Format(time.RFC3339),
		sum.TasksFetched, sum.EventsCreated, string(processed))
	if err != nil {
		return fmt.Errorf("storage: record run %s: %w", sum.RunID, err)
	}
	return nil
}

// RecordTask tracks a task seen during a run and whether it ended up
// planned.
func (s *Store) RecordTask(ctx context.Context, taskID, title string, planned bool) error {
	flag := 0
	if planned {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO items (task_id, title, planned, updated_at)
        VALUES (?, ?, ?, ?)
    `, taskID, title, flag, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storage: record task %s: %w", taskID, err)
	}
	return nil
}

// RecordEvent persists one placed calendar event.
func (s *Store) RecordEvent(ctx context.Context, runID, taskID, eventID, title string, start, end time.Time, overflow bool) error {
	flag := 0
	if overflow {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO events (event_id, run_id, task_id, title, start_at, end_at, overflow)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, eventID, runID, taskID, title, start.Format(time.RFC3339), end.Format(time.RFC3339), flag)
	if err != nil {
		return fmt.Errorf("storage: record event %s: %w", eventID, err)
	}
	return nil
}

// History returns up to limit run summaries, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]plan.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, started_at, finished_at, tasks_fetched, events_created, processed
        FROM runs ORDER BY started_at DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query runs: %w", err)
	}
	defer rows.Close()

	var sums []plan.Summary
	for rows.Next() {
		var sum plan.Summary
		var started, finished, processed string
		if err := rows.Scan(&sum.RunID, &started, &finished, &sum.TasksFetched, &sum.EventsCreated, &processed); err != nil {
			return nil, fmt.Errorf("storage: scan run row: %w", err)
		}
		if sum.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("storage: run %s started_at: %w", sum.RunID, err)
		}
		if sum.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("storage: run %s finished_at: %w", sum.RunID, err)
		}
		if err := json.Unmarshal([]byte(processed), &sum.Processed); err != nil {
			return nil, fmt.Errorf("storage: run %s processed: %w", sum.RunID, err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate runs: %w", err)
	}
	return sums, nil
}

// LastRun returns the most recent run summary, or nil when no run has
// been recorded yet.
func (s *Store) LastRun(ctx context.Context) (*plan.Summary, error) {
	sums, err := s.History(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return nil, nil
	}
	return &sums[0], nil
}
