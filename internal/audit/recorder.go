package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"mysql2snowflake/internal/migrate"
	"mysql2snowflake/internal/store"
)

const (
	ActionRunStarted   = "run.started"
	ActionPhaseChanged = "run.phase_changed"
	ActionRunFinished  = "run.finished"
)

// Recorder persists runs into the audit database.
type Recorder struct {
	pool   *pgxpool.Pool
	logger Logger
}

func NewRecorder(pool *pgxpool.Pool, logger Logger) *Recorder {
	return &Recorder{pool: pool, logger: logger}
}

func (r *Recorder) RunStarted(ctx context.Context, run migrate.Run) error {
	if err := store.CreateRun(ctx, r.pool, store.Run{
		ID:                   run.ID,
		SourceDatabase:       run.SourceDatabase,
		DestinationNamespace: run.DestinationNamespace,
		Status:               store.StatusRunning,
		Phase:                string(migrate.PhaseConnecting),
		StartedAt:            run.StartedAt,
	}); err != nil {
		return err
	}
	return LogEvent(ctx, r.pool, r.logger, Event{
		RunID:  run.ID,
		Action: ActionRunStarted,
		Payload: map[string]any{
			"source_database":       run.SourceDatabase,
			"destination_namespace": run.DestinationNamespace,
		},
	})
}

func (r *Recorder) PhaseChanged(ctx context.Context, runID uuid.UUID, from, to migrate.Phase) error {
	if to.Terminal() {
		// RunFinished writes the terminal phase together with the results.
		return nil
	}
	if err := store.UpdateRunPhase(ctx, r.pool, runID, string(to)); err != nil {
		return err
	}
	return LogEvent(ctx, r.pool, r.logger, Event{
		RunID:   runID,
		Action:  ActionPhaseChanged,
		Payload: map[string]any{"from": string(from), "to": string(to)},
	})
}

func (r *Recorder) RunFinished(ctx context.Context, res migrate.Result, runErr error) error {
	status := store.StatusDone
	var msg *string
	if runErr != nil {
		status = store.StatusFailed
		s := runErr.Error()
		msg = &s
	}
	tables := Tables(res)
	if err := store.FinishRun(ctx, r.pool, res.RunID, status, string(res.Phase), res.FinishedAt, msg, tables); err != nil {
		return err
	}

	payload := map[string]any{
		"status":  status,
		"tables":  len(tables),
		"matched": res.Matched(),
	}
	if msg != nil {
		payload["error"] = *msg
	}
	for _, sentinel := range []error{migrate.ErrConnection, migrate.ErrSchema, migrate.ErrLoad, migrate.ErrVerify} {
		if errors.Is(runErr, sentinel) {
			payload["failure"] = sentinel.Error()
		}
	}
	return LogEvent(ctx, r.pool, r.logger, Event{RunID: res.RunID, Action: ActionRunFinished, Payload: payload})
}

// Tables merges load stats and verification reports into one row per table,
// in provisioning order.
func Tables(res migrate.Result) []store.RunTable {
	out := make([]store.RunTable, 0, len(res.Tables))
	idx := make(map[string]int, len(res.Tables))
	for _, name := range res.Tables {
		idx[name] = len(out)
		out = append(out, store.RunTable{Table: name})
	}
	for _, s := range res.Loaded {
		if i, ok := idx[s.Table]; ok {
			out[i].RowsLoaded = s.Rows
			out[i].Batches = s.Batches
		}
	}
	for _, rep := range res.Reports {
		if i, ok := idx[rep.Table]; ok {
			src, dst, matched := rep.SourceCount, rep.DestinationCount, rep.Matched
			out[i].SourceCount = &src
			out[i].DestinationCount = &dst
			out[i].Matched = &matched
		}
	}
	return out
}
