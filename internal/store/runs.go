package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRunNotFound = errors.New("run not found")

const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

type Run struct {
	ID                   uuid.UUID  `json:"id"`
	SourceDatabase       string     `json:"source_database"`
	DestinationNamespace string     `json:"destination_namespace"`
	Status               string     `json:"status"`
	Phase                string     `json:"phase"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
	Error                *string    `json:"error,omitempty"`
}

// RunTable is the per-table outcome of a run. Counts stay nil for tables the
// run never reached.
type RunTable struct {
	Table            string `json:"table"`
	RowsLoaded       int64  `json:"rows_loaded"`
	Batches          int    `json:"batches"`
	SourceCount      *int64 `json:"source_count,omitempty"`
	DestinationCount *int64 `json:"destination_count,omitempty"`
	Matched          *bool  `json:"matched,omitempty"`
}

type RunWithTables struct {
	Run
	Tables []RunTable `json:"tables"`
}

func CreateRun(ctx context.Context, pool *pgxpool.Pool, run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	_, err := pool.Exec(ctx, `
INSERT INTO migration_runs (id, source_database, destination_namespace, status, phase, started_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, run.ID, run.SourceDatabase, run.DestinationNamespace, run.Status, run.Phase, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func UpdateRunPhase(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID, phase string) error {
	tag, err := pool.Exec(ctx, `UPDATE migration_runs SET phase = $1 WHERE id = $2`, phase, runID)
	if err != nil {
		return fmt.Errorf("update run phase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// FinishRun stores the terminal status and per-table results in one
// transaction.
func FinishRun(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID, status, phase string, finishedAt time.Time, runErr *string, tables []RunTable) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
UPDATE migration_runs
SET status = $1, phase = $2, finished_at = $3, error = $4
WHERE id = $5
`, status, phase, finishedAt, runErr, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}

	for _, t := range tables {
		if _, err := tx.Exec(ctx, `
INSERT INTO migration_run_tables (run_id, table_name, rows_loaded, batches, source_count, destination_count, matched)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id, table_name) DO UPDATE
SET rows_loaded = EXCLUDED.rows_loaded,
    batches = EXCLUDED.batches,
    source_count = EXCLUDED.source_count,
    destination_count = EXCLUDED.destination_count,
    matched = EXCLUDED.matched
`, runID, t.Table, t.RowsLoaded, t.Batches, t.SourceCount, t.DestinationCount, t.Matched); err != nil {
			return fmt.Errorf("upsert run table %s: %w", t.Table, err)
		}
	}
	return tx.Commit(ctx)
}

func GetRunWithTables(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID) (*RunWithTables, error) {
	var run Run
	if err := pool.QueryRow(ctx, `
SELECT id, source_database, destination_namespace, status, phase, started_at, finished_at, error
FROM migration_runs
WHERE id = $1
`, runID).Scan(&run.ID, &run.SourceDatabase, &run.DestinationNamespace, &run.Status, &run.Phase, &run.StartedAt, &run.FinishedAt, &run.Error); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	rows, err := pool.Query(ctx, `
SELECT table_name, rows_loaded, batches, source_count, destination_count, matched
FROM migration_run_tables
WHERE run_id = $1
ORDER BY table_name
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &RunWithTables{Run: run, Tables: []RunTable{}}
	for rows.Next() {
		var t RunTable
		if err := rows.Scan(&t.Table, &t.RowsLoaded, &t.Batches, &t.SourceCount, &t.DestinationCount, &t.Matched); err != nil {
			return nil, err
		}
		out.Tables = append(out.Tables, t)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs first.
func ListRuns(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := pool.Query(ctx, `
SELECT id, source_database, destination_namespace, status, phase, started_at, finished_at, error
FROM migration_runs
ORDER BY started_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.SourceDatabase, &run.DestinationNamespace, &run.Status, &run.Phase, &run.StartedAt, &run.FinishedAt, &run.Error); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Runs binds the run queries to a pool.
type Runs struct {
	Pool *pgxpool.Pool
}

func (r Runs) List(ctx context.Context, limit int) ([]Run, error) {
	return ListRuns(ctx, r.Pool, limit)
}

func (r Runs) Get(ctx context.Context, id uuid.UUID) (*RunWithTables, error) {
	return GetRunWithTables(ctx, r.Pool, id)
}

func (r Runs) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}
