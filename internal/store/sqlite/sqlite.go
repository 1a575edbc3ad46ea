package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/readyup/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver,
// CGO-free). DSN is a filesystem path; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs(
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			outcome TEXT NOT NULL,
			services INTEGER NOT NULL,
			ready_count INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_services(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			polls INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			detail TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_services_run ON run_services(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) SaveRun(ctx context.Context, run store.RunRecord, services []store.ServiceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs(id, started_at, finished_at, outcome, services, ready_count)
		VALUES(?, ?, ?, ?, ?, ?);`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Outcome, run.Services, run.ReadyCount); err != nil {
		return err
	}
	for _, sv := range services {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_services(run_id, name, state, polls, elapsed_ms, detail)
			VALUES(?, ?, ?, ?, ?, ?);`,
			sv.RunID, sv.Name, sv.State, sv.Polls, sv.Elapsed.Milliseconds(), sv.Detail); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *DB) GetRun(ctx context.Context, id string) (store.RunRecord, []store.ServiceRecord, error) {
	var run store.RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, outcome, services, ready_count
		FROM runs WHERE id=?;`, id).
		Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Outcome, &run.Services, &run.ReadyCount)
	if err != nil {
		return store.RunRecord{}, nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, state, polls, elapsed_ms, detail
		FROM run_services WHERE run_id=? ORDER BY name;`, id)
	if err != nil {
		return store.RunRecord{}, nil, err
	}
	defer func() { _ = rows.Close() }()
	svcs, err := scanServices(rows)
	if err != nil {
		return store.RunRecord{}, nil, err
	}
	return run, svcs, nil
}

func (s *DB) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, outcome, services, ready_count
		FROM runs ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.RunRecord, 0)
	for rows.Next() {
		var r store.RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Outcome, &r.Services, &r.ReadyCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanServices(rows *sql.Rows) ([]store.ServiceRecord, error) {
	out := make([]store.ServiceRecord, 0)
	for rows.Next() {
		var r store.ServiceRecord
		var ms int64
		var detail sql.NullString
		if err := rows.Scan(&r.RunID, &r.Name, &r.State, &r.Polls, &ms, &detail); err != nil {
			return nil, err
		}
		r.Elapsed = time.Duration(ms) * time.Millisecond
		r.Detail = detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}
