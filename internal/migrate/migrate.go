// Package migrate sequences a full MySQL to Snowflake run: connect,
// provision, load, verify and release both connections on every exit path.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/load"
	"mysql2snowflake/internal/provision"
	"mysql2snowflake/internal/schema"
	"mysql2snowflake/internal/verify"
)

// Phase is a state of the run state machine.
type Phase string

const (
	PhaseConnecting         Phase = "connecting"
	PhaseProvisioning       Phase = "provisioning"
	PhaseLoading            Phase = "loading"
	PhaseVerifying          Phase = "verifying"
	PhaseClosingConnections Phase = "closing_connections"
	PhaseDone               Phase = "done"
	PhaseFailed             Phase = "failed"
)

// Terminal reports whether no further transition follows p.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

var (
	ErrConnection = errors.New("connection failed")
	ErrSchema     = errors.New("schema provisioning failed")
	ErrLoad       = errors.New("load failed")
	ErrVerify     = errors.New("verification failed")
)

// Observer receives every event of a run. Implementations must not block.
type Observer interface {
	provision.Observer
	load.Observer
	verify.Observer
	PhaseChanged(runID uuid.UUID, from, to Phase)
}

// Run identifies a run for recorders.
type Run struct {
	ID                   uuid.UUID
	SourceDatabase       string
	DestinationNamespace string
	StartedAt            time.Time
}

// Recorder persists run outcomes. Errors are logged, never fatal.
type Recorder interface {
	RunStarted(ctx context.Context, run Run) error
	PhaseChanged(ctx context.Context, runID uuid.UUID, from, to Phase) error
	RunFinished(ctx context.Context, res Result, runErr error) error
}

// Result is what a run produced, including partial output of a failed run.
type Result struct {
	RunID      uuid.UUID
	Phase      Phase
	Tables     []string
	Loaded     []load.TableStats
	Reports    []verify.Report
	StartedAt  time.Time
	FinishedAt time.Time
}

// Matched reports whether every verified table reconciled.
func (r Result) Matched() bool {
	return len(r.Reports) > 0 && verify.Summarize(r.Reports).AllMatched()
}

type (
	SourceOpener      func(ctx context.Context) (db.Source, error)
	DestinationOpener func(ctx context.Context) (db.Destination, error)
)

type Options struct {
	BatchSize int
	LoadMode  load.Mode
	Matching  schema.Matching
	// Labels used for logging and recording only.
	SourceDatabase       string
	DestinationNamespace string
}

type Runner struct {
	openSource      SourceOpener
	openDestination DestinationOpener
	opts            Options
	logger          *slog.Logger
	observers       fanout
	recorder        Recorder
}

func New(openSource SourceOpener, openDestination DestinationOpener, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		openSource:      openSource,
		openDestination: openDestination,
		opts:            opts,
		logger:          logger,
	}
}

// Observe registers an observer. Call before Run.
func (r *Runner) Observe(o Observer) *Runner {
	if o != nil {
		r.observers = append(r.observers, o)
	}
	return r
}

// RecordWith sets the recorder. Call before Run.
func (r *Runner) RecordWith(rec Recorder) *Runner {
	r.recorder = rec
	return r
}

// Run executes one migration attempt. There are no retries: the first
// failure is returned wrapped in the sentinel of the phase it happened in,
// after both connections have been closed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.New(), Phase: PhaseConnecting, StartedAt: time.Now().UTC()}
	logger := r.logger.With("run_id", res.RunID.String())
	logger.Info("migration started",
		"source_database", r.opts.SourceDatabase,
		"destination", r.opts.DestinationNamespace,
		"batch_size", r.opts.BatchSize,
		"load_mode", string(r.opts.LoadMode),
		"type_matching", string(r.opts.Matching),
	)
	r.record(ctx, logger, "run started", func(ctx context.Context) error {
		return r.recorder.RunStarted(ctx, Run{
			ID:                   res.RunID,
			SourceDatabase:       r.opts.SourceDatabase,
			DestinationNamespace: r.opts.DestinationNamespace,
			StartedAt:            res.StartedAt,
		})
	})
	r.observers.PhaseChanged(res.RunID, "", PhaseConnecting)

	src, dst, err := r.connect(ctx)
	if err != nil {
		return r.finish(ctx, logger, &res, PhaseFailed, fmt.Errorf("%w: %w", ErrConnection, err))
	}

	runErr := r.pipeline(ctx, logger, src, dst, &res)

	r.transition(ctx, logger, &res, PhaseClosingConnections)
	if err := errors.Join(dst.Close(), src.Close()); err != nil {
		logger.Warn("close connections", "error", err)
	}

	if runErr != nil {
		return r.finish(ctx, logger, &res, PhaseFailed, runErr)
	}
	return r.finish(ctx, logger, &res, PhaseDone, nil)
}

func (r *Runner) connect(ctx context.Context) (db.Source, db.Destination, error) {
	src, err := r.openSource(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	dst, err := r.openDestination(ctx)
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("destination: %w", err)
	}
	return src, dst, nil
}

func (r *Runner) pipeline(ctx context.Context, logger *slog.Logger, src db.Source, dst db.Destination, res *Result) error {
	r.transition(ctx, logger, res, PhaseProvisioning)
	tables, err := provision.New(src, dst, schema.NewTranslator(r.opts.Matching), logger, r.observers).Provision(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	res.Tables = tables

	r.transition(ctx, logger, res, PhaseLoading)
	loader, err := load.New(src, dst, r.opts.BatchSize, r.opts.LoadMode, logger, r.observers)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	res.Loaded, err = loader.Load(ctx, tables)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	r.transition(ctx, logger, res, PhaseVerifying)
	res.Reports, err = verify.New(src, dst, logger, r.observers).Verify(ctx, tables)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	return nil
}

func (r *Runner) transition(ctx context.Context, logger *slog.Logger, res *Result, to Phase) {
	from := res.Phase
	res.Phase = to
	logger.Info("phase changed", "from", string(from), "to", string(to))
	r.observers.PhaseChanged(res.RunID, from, to)
	r.record(ctx, logger, "phase changed", func(ctx context.Context) error {
		return r.recorder.PhaseChanged(ctx, res.RunID, from, to)
	})
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, res *Result, to Phase, runErr error) (Result, error) {
	r.transition(ctx, logger, res, to)
	res.FinishedAt = time.Now().UTC()
	if runErr != nil {
		logger.Error("migration failed", "error", runErr, "duration_ms", res.FinishedAt.Sub(res.StartedAt).Milliseconds())
	} else {
		logger.Info("migration finished",
			"tables", len(res.Tables),
			"matched", res.Matched(),
			"duration_ms", res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
		)
	}
	r.record(ctx, logger, "run finished", func(ctx context.Context) error {
		return r.recorder.RunFinished(ctx, *res, runErr)
	})
	return *res, runErr
}

// record runs fn against the recorder with a context that survives
// cancellation of the run, so failed runs are still persisted.
func (r *Runner) record(ctx context.Context, logger *slog.Logger, what string, fn func(context.Context) error) {
	if r.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("recorder failed", "event", what, "error", err)
	}
}

// fanout forwards every event to each registered observer in order.
type fanout []Observer

func (f fanout) PhaseChanged(runID uuid.UUID, from, to Phase) {
	for _, o := range f {
		o.PhaseChanged(runID, from, to)
	}
}

func (f fanout) TableProvisioned(table string, columns []db.ColumnDef) {
	for _, o := range f {
		o.TableProvisioned(table, columns)
	}
}

func (f fanout) TableStarted(table string) {
	for _, o := range f {
		o.TableStarted(table)
	}
}

func (f fanout) BatchCommitted(table string, rows int, total int64) {
	for _, o := range f {
		o.BatchCommitted(table, rows, total)
	}
}

func (f fanout) TableLoaded(stats load.TableStats) {
	for _, o := range f {
		o.TableLoaded(stats)
	}
}

func (f fanout) TableVerified(rep verify.Report) {
	for _, o := range f {
		o.TableVerified(rep)
	}
}
