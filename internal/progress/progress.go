// Package progress renders load progress as terminal progress bars.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/load"
	"mysql2snowflake/internal/migrate"
	"mysql2snowflake/internal/verify"
)

// Bars draws one bar per table while it loads. Row totals are not known up
// front, so bars count rows without a maximum.
type Bars struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func NewBars(out io.Writer) *Bars {
	return &Bars{out: out}
}

func (b *Bars) PhaseChanged(_ uuid.UUID, _, to migrate.Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked()
	fmt.Fprintf(b.out, "==> %s\n", to)
}

func (b *Bars) TableProvisioned(table string, columns []db.ColumnDef) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, "    %s (%d columns)\n", table, len(columns))
}

func (b *Bars) TableStarted(table string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked()
	b.bar = progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionSetDescription(table),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(b.out) }),
	)
}

func (b *Bars) BatchCommitted(_ string, rows int, _ int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Add(rows)
	}
}

func (b *Bars) TableLoaded(stats load.TableStats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked()
	fmt.Fprintf(b.out, "    %s: %d rows in %d batches (%s)\n", stats.Table, stats.Rows, stats.Batches, stats.Duration.Round(time.Millisecond))
}

func (b *Bars) TableVerified(r verify.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mark := "ok"
	if !r.Matched {
		mark = "MISMATCH"
	}
	fmt.Fprintf(b.out, "    %s: source=%d destination=%d %s\n", r.Table, r.SourceCount, r.DestinationCount, mark)
}

func (b *Bars) finishLocked() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	b.bar = nil
}
