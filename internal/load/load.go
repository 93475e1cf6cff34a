// Package load copies source rows into destination tables in bounded,
// individually committed batches.
package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mysql2snowflake/internal/db"
)

// Mode selects what happens to existing destination rows.
type Mode string

const (
	// Append inserts on top of whatever the table holds; re-runs duplicate rows.
	Append Mode = "append"
	// Truncate empties the destination table before loading it.
	Truncate Mode = "truncate"
)

// ParseMode reads a load mode name. Empty means Append.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Append, "":
		return Append, nil
	case Truncate:
		return Truncate, nil
	default:
		return "", fmt.Errorf("unknown load mode %q", s)
	}
}

// TableStats summarizes the load of one table.
type TableStats struct {
	Table    string
	Rows     int64
	Batches  int
	Duration time.Duration
}

// Observer receives per-table and per-batch progress.
type Observer interface {
	TableStarted(table string)
	BatchCommitted(table string, rows int, total int64)
	TableLoaded(stats TableStats)
}

// Error reports a load failure together with what was already committed for
// the failing table.
type Error struct {
	Table     string
	Committed int64
	Batches   int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("load %s after %d committed rows in %d batches: %v", e.Table, e.Committed, e.Batches, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Loader struct {
	src       db.Source
	dst       db.Destination
	batchSize int
	mode      Mode
	logger    *slog.Logger
	observer  Observer
}

func New(src db.Source, dst db.Destination, batchSize int, mode Mode, logger *slog.Logger, observer Observer) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	switch mode {
	case "":
		mode = Append
	case Append, Truncate:
	default:
		return nil, fmt.Errorf("unknown load mode %q", mode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{src: src, dst: dst, batchSize: batchSize, mode: mode, logger: logger, observer: observer}, nil
}

// Load copies every listed table sequentially. The first failure stops the
// run; batches committed before it stay in the destination.
func (l *Loader) Load(ctx context.Context, tables []string) ([]TableStats, error) {
	out := make([]TableStats, 0, len(tables))
	for _, table := range tables {
		stats, err := l.LoadTable(ctx, table)
		if err != nil {
			return out, err
		}
		out = append(out, stats)
	}
	return out, nil
}

// LoadTable streams one table. At most batchSize rows are held in memory.
func (l *Loader) LoadTable(ctx context.Context, table string) (TableStats, error) {
	start := time.Now()
	stats := TableStats{Table: table}
	fail := func(err error) (TableStats, error) {
		return stats, &Error{Table: table, Committed: stats.Rows, Batches: stats.Batches, Err: err}
	}

	if l.observer != nil {
		l.observer.TableStarted(table)
	}
	if l.mode == Truncate {
		if err := l.dst.Truncate(ctx, table); err != nil {
			return fail(fmt.Errorf("truncate: %w", err))
		}
	}

	cur, err := l.src.Scan(ctx, table)
	if err != nil {
		return fail(err)
	}
	defer cur.Close()

	stmt := l.dst.PrepareInsert(table, cur.Columns())
	batch := db.NewBatch(cur.Columns(), l.batchSize)

	flush := func() error {
		if err := l.dst.InsertBatch(ctx, stmt, batch); err != nil {
			return fmt.Errorf("insert batch %d: %w", stats.Batches+1, err)
		}
		if err := l.dst.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		stats.Rows += int64(batch.Len())
		l.logger.Debug("batch committed", "table", table, "rows", batch.Len(), "total", stats.Rows)
		if l.observer != nil {
			l.observer.BatchCommitted(table, batch.Len(), stats.Rows)
		}
		batch.Reset()
		return nil
	}

	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		row, err := cur.Row()
		if err != nil {
			return fail(fmt.Errorf("read row: %w", err))
		}
		if err := batch.Append(row); err != nil {
			return fail(err)
		}
		if batch.Len() >= l.batchSize {
			if err := flush(); err != nil {
				return fail(err)
			}
		}
	}
	if err := cur.Err(); err != nil {
		return fail(fmt.Errorf("scan: %w", err))
	}
	if batch.Len() > 0 {
		if err := flush(); err != nil {
			return fail(err)
		}
	}

	stats.Duration = time.Since(start)
	l.logger.Info("table loaded",
		"table", table,
		"rows", stats.Rows,
		"batches", stats.Batches,
		"batch_size", l.batchSize,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if l.observer != nil {
		l.observer.TableLoaded(stats)
	}
	return stats, nil
}

// AsError extracts a load Error from err.
func AsError(err error) (*Error, bool) {
	var le *Error
	ok := errors.As(err, &le)
	return le, ok
}
