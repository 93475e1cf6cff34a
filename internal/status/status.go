// Package status keeps an in-memory view of the current run for the HTTP
// status endpoint.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/load"
	"mysql2snowflake/internal/migrate"
	"mysql2snowflake/internal/verify"
)

type TableState string

const (
	TablePending     TableState = "pending"
	TableProvisioned TableState = "provisioned"
	TableLoading     TableState = "loading"
	TableLoaded      TableState = "loaded"
	TableVerified    TableState = "verified"
)

type Table struct {
	Name        string         `json:"name"`
	State       TableState     `json:"state"`
	Columns     int            `json:"columns"`
	RowsLoaded  int64          `json:"rows_loaded"`
	Batches     int            `json:"batches"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	Report      *verify.Report `json:"report,omitempty"`
	LastBatchAt *time.Time     `json:"last_batch_at,omitempty"`
}

// Snapshot is a copy of the tracker state that is safe to serialise.
type Snapshot struct {
	RunID     *uuid.UUID    `json:"run_id,omitempty"`
	Phase     migrate.Phase `json:"phase"`
	UpdatedAt time.Time     `json:"updated_at"`
	Tables    []Table       `json:"tables"`
}

// Tracker implements migrate.Observer.
type Tracker struct {
	mu     sync.RWMutex
	now    func() time.Time
	runID  uuid.UUID
	phase  migrate.Phase
	at     time.Time
	order  []string
	tables map[string]*Table
}

func NewTracker() *Tracker {
	return &Tracker{
		now:    func() time.Time { return time.Now().UTC() },
		tables: map[string]*Table{},
	}
}

func (t *Tracker) PhaseChanged(runID uuid.UUID, _, to migrate.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if runID != t.runID {
		t.runID = runID
		t.order = nil
		t.tables = map[string]*Table{}
	}
	t.phase = to
	t.at = t.now()
}

func (t *Tracker) TableProvisioned(table string, columns []db.ColumnDef) {
	t.update(table, func(tb *Table) {
		tb.State = TableProvisioned
		tb.Columns = len(columns)
	})
}

func (t *Tracker) TableStarted(table string) {
	t.update(table, func(tb *Table) {
		tb.State = TableLoading
		tb.RowsLoaded = 0
		tb.Batches = 0
	})
}

func (t *Tracker) BatchCommitted(table string, _ int, total int64) {
	now := t.now()
	t.update(table, func(tb *Table) {
		tb.RowsLoaded = total
		tb.Batches++
		tb.LastBatchAt = &now
	})
}

func (t *Tracker) TableLoaded(stats load.TableStats) {
	t.update(stats.Table, func(tb *Table) {
		tb.State = TableLoaded
		tb.RowsLoaded = stats.Rows
		tb.Batches = stats.Batches
		tb.DurationMS = stats.Duration.Milliseconds()
	})
}

func (t *Tracker) TableVerified(r verify.Report) {
	t.update(r.Table, func(tb *Table) {
		tb.State = TableVerified
		rep := r
		tb.Report = &rep
	})
}

func (t *Tracker) update(name string, fn func(*Table)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tb, ok := t.tables[name]
	if !ok {
		tb = &Table{Name: name, State: TablePending}
		t.tables[name] = tb
		t.order = append(t.order, name)
	}
	fn(tb)
	t.at = t.now()
}

// Snapshot returns a deep copy of the current state, tables in the order
// they were first seen.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{Phase: t.phase, UpdatedAt: t.at, Tables: make([]Table, 0, len(t.order))}
	if t.runID != uuid.Nil {
		id := t.runID
		s.RunID = &id
	}
	for _, name := range t.order {
		tb := *t.tables[name]
		if tb.Report != nil {
			rep := *tb.Report
			tb.Report = &rep
		}
		if tb.LastBatchAt != nil {
			at := *tb.LastBatchAt
			tb.LastBatchAt = &at
		}
		s.Tables = append(s.Tables, tb)
	}
	return s
}
