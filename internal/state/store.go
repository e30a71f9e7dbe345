// Package state manages the SQLite database that records synchronizer runs
// and the page changes each run applied.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/pressrelay/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT    PRIMARY KEY,
    started_at  TEXT    NOT NULL,
    finished_at TEXT    NOT NULL DEFAULT '',
    dry_run     INTEGER NOT NULL DEFAULT 0,
    status      TEXT    NOT NULL,
    error       TEXT    NOT NULL DEFAULT '',
    remote      INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    created     INTEGER NOT NULL DEFAULT 0,
    edited      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS changes (
    run_id  TEXT    NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
    seq     INTEGER NOT NULL,
    path    TEXT    NOT NULL,
    page_id INTEGER NOT NULL,
    action  TEXT    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);
CREATE INDEX IF NOT EXISTS idx_changes_path    ON changes (path);
`

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded synchronizer run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`

	// Remote is the number of remote pages indexed, Skipped the number of
	// desired pages the cache found unchanged.
	Remote  int `json:"remote"`
	Skipped int `json:"skipped"`

	// Created and Edited are derived from Changes when the run is saved.
	Created int `json:"created"`
	Edited  int `json:"edited"`

	// Changes is only populated by [Store.GetRun].
	Changes []model.ChangeRecord `json:"changes,omitempty"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is the SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the history database:
// ~/.local/share/pressrelay/history.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "pressrelay", "history.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// SaveRun stores run and its changes in one transaction. A run without an
// ID is assigned a fresh UUID.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Created, run.Edited = 0, 0
	for _, c := range run.Changes {
		switch c.Action {
		case model.ActionCreated:
			run.Created++
		case model.ActionEdited:
			run.Edited++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	const qRun = `
		INSERT INTO runs
		    (id, started_at, finished_at, dry_run, status, error,
		     remote, skipped, created, edited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, qRun,
		run.ID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.DryRun,
		string(run.Status),
		run.Error,
		run.Remote,
		run.Skipped,
		run.Created,
		run.Edited,
	); err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}

	const qChange = `INSERT INTO changes (run_id, seq, path, page_id, action) VALUES (?, ?, ?, ?, ?)`
	for i, c := range run.Changes {
		if _, err := tx.ExecContext(ctx, qChange, run.ID, i, c.Path, c.ID, string(c.Action)); err != nil {
			return fmt.Errorf("saving change %q of run %s: %w", c.Path, run.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, dry_run, status, error, remote, skipped, created, edited`

// ListRuns returns up to limit runs, newest first, without their changes.
// A limit of zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// LastRun returns the most recent run, or (nil, nil) if none was recorded.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id LIMIT 1`
	return scanRun(s.db.QueryRowContext(ctx, q))
}

// GetRun returns the run with the given id including its changes, or
// (nil, nil) if no such run exists.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, q, id))
	if err != nil || run == nil {
		return run, err
	}

	const qChanges = `SELECT path, page_id, action FROM changes WHERE run_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, qChanges, id)
	if err != nil {
		return nil, fmt.Errorf("querying changes of run %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c model.ChangeRecord
		var action string
		if err := rows.Scan(&c.Path, &c.ID, &action); err != nil {
			return nil, fmt.Errorf("scanning change row: %w", err)
		}
		c.Action = model.Action(action)
		run.Changes = append(run.Changes, c)
	}
	return run, rows.Err()
}

// PageHistory returns every recorded change to path, newest first.
func (s *Store) PageHistory(ctx context.Context, path string) ([]model.ChangeRecord, error) {
	const q = `
		SELECT c.path, c.page_id, c.action
		FROM changes c JOIN runs r ON r.id = c.run_id
		WHERE c.path = ? AND r.dry_run = 0
		ORDER BY r.started_at DESC`
	rows, err := s.db.QueryContext(ctx, q, model.NormalizePath(path))
	if err != nil {
		return nil, fmt.Errorf("querying history of %q: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ChangeRecord
	for rows.Next() {
		var c model.ChangeRecord
		var action string
		if err := rows.Scan(&c.Path, &c.ID, &action); err != nil {
			return nil, fmt.Errorf("scanning change row: %w", err)
		}
		c.Action = model.Action(action)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	const q = `
		DELETE FROM runs WHERE id NOT IN (
		    SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		)`
	res, err := s.db.ExecContext(ctx, q, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return res.RowsAffected()
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scanRun can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var startedAt, finishedAt, status string

	err := s.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&run.DryRun,
		&status,
		&run.Error,
		&run.Remote,
		&run.Skipped,
		&run.Created,
		&run.Edited,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run row: %w", err)
	}

	run.Status = RunStatus(status)
	run.StartedAt, _ = parseTime(startedAt)
	run.FinishedAt, _ = parseTime(finishedAt)

	return &run, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
