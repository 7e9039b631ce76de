// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scenario_runs (
    run_id         TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    source         TEXT NOT NULL DEFAULT '',
    outcome        TEXT NOT NULL,
    aborted_in     TEXT NOT NULL DEFAULT '',
    started_at     TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT NOT NULL,
    steps_executed INTEGER NOT NULL,
    step_failures  INTEGER NOT NULL,
    frames         JSONB NOT NULL,
    assertions     JSONB NOT NULL,
    diagnostics    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS scenario_runs_name_started_idx ON scenario_runs (name, started_at DESC);
CREATE TABLE IF NOT EXISTS scenario_steps (
    run_id      TEXT NOT NULL REFERENCES scenario_runs (run_id) ON DELETE CASCADE,
    idx         INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    label       TEXT NOT NULL,
    status      TEXT NOT NULL,
    fatal       BOOLEAN NOT NULL,
    code        TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL,
    PRIMARY KEY (run_id, idx)
);`

const (
	sqlInsertRun = `
        INSERT INTO scenario_runs (run_id, name, source, outcome, aborted_in, started_at, duration_ms,
            steps_executed, step_failures, frames, assertions, diagnostics)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `
	sqlInsertStep = `
        INSERT INTO scenario_steps (run_id, idx, kind, label, status, fatal, code, error, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	sqlRecentRuns = `
        SELECT run_id, name, outcome, aborted_in, started_at, duration_ms, steps_executed, step_failures
        FROM scenario_runs
        WHERE name = $1
        ORDER BY started_at DESC
        LIMIT $2;
    `
)

// RunSummary is one row of run history.
type RunSummary struct {
	RunID         string
	Name          string
	Outcome       schemas.Outcome
	AbortedIn     string
	StartedAt     time.Time
	Duration      time.Duration
	StepsExecuted int
	StepFailures  int
}

// Store persists scenario reports in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store over an existing pool.
func New(pool DBPool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// Open connects to dsn, verifies the connection and returns the store with
// a cleanup function that closes the pool.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := New(pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveReport writes a report and its step results in one transaction.
func (s *Store) SaveReport(ctx context.Context, report schemas.ScenarioReport) error {
	if report.RunID == "" {
		return errors.New("report has no run id")
	}

	frames, err := json.Marshal(report.Frames)
	if err != nil {
		return fmt.Errorf("failed to encode frames: %w", err)
	}
	assertions, err := json.Marshal(nonNil(report.AssertionResults))
	if err != nil {
		return fmt.Errorf("failed to encode assertions: %w", err)
	}
	diagnostics, err := json.Marshal(nonNil(report.Diagnostics))
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlInsertRun,
		report.RunID, report.Name, report.Source, string(report.Outcome), report.AbortedIn,
		report.StartedAt.UTC(), report.Duration.Milliseconds(),
		report.StepsExecuted, report.StepFailures,
		string(frames), string(assertions), string(diagnostics),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	for _, step := range report.StepResults {
		_, err := tx.Exec(ctx, sqlInsertStep,
			report.RunID, step.Index, string(step.Kind), step.Label, string(step.Status),
			step.Fatal, string(step.Code), step.Error, step.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %d of run %s: %w", step.Index, report.RunID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Saved scenario report.",
		zap.String("run_id", report.RunID),
		zap.String("scenario", report.Name),
		zap.Int("steps", len(report.StepResults)))
	return nil
}

// RecentRuns returns up to limit runs of the named scenario, newest first.
func (s *Store) RecentRuns(ctx context.Context, name string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r          RunSummary
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(&r.RunID, &r.Name, &outcome, &r.AbortedIn, &r.StartedAt,
			&durationMS, &r.StepsExecuted, &r.StepFailures); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Outcome = schemas.Outcome(outcome)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
