// Package dbtest provides in-memory Source and Destination implementations
// for tests.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mysql2snowflake/internal/db"
)

// Table is a source table held in memory.
type Table struct {
	Columns []db.Column
	Rows    [][]any
	// ScanOrder overrides the column order reported by Scan. Values in Rows
	// are always in Columns order.
	ScanOrder []string
}

type Source struct {
	mu     sync.Mutex
	names  []string
	tables map[string]*Table
	Closed bool

	// Injected errors. The maps are keyed by table name.
	ListErr     error
	DescribeErr map[string]error
	ScanErr     map[string]error
	CountErr    map[string]error
}

func NewSource() *Source {
	return &Source{
		tables:      map[string]*Table{},
		DescribeErr: map[string]error{},
		ScanErr:     map[string]error{},
		CountErr:    map[string]error{},
	}
}

// AddTable registers a table; tables are listed in insertion order.
func (s *Source) AddTable(name string, t Table) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		s.names = append(s.names, name)
	}
	tt := t
	s.tables[name] = &tt
	return s
}

func (s *Source) Close() error {
	s.Closed = true
	return nil
}

func (s *Source) ListTables(ctx context.Context) ([]string, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return append([]string(nil), s.names...), nil
}

func (s *Source) DescribeTable(ctx context.Context, table string) ([]db.Column, error) {
	if err := s.DescribeErr[table]; err != nil {
		return nil, err
	}
	t, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("no table %s", table)
	}
	return append([]db.Column(nil), t.Columns...), nil
}

func (s *Source) Scan(ctx context.Context, table string) (db.RowCursor, error) {
	if err := s.ScanErr[table]; err != nil {
		return nil, err
	}
	t, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("no table %s", table)
	}
	order := t.ScanOrder
	if len(order) == 0 {
		for _, c := range t.Columns {
			order = append(order, c.Name)
		}
	}
	idx := make([]int, len(order))
	for i, name := range order {
		idx[i] = -1
		for j, c := range t.Columns {
			if c.Name == name {
				idx[i] = j
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("no column %s in %s", name, table)
		}
	}
	return &cursor{table: t, columns: db.NewColumnSet(order), idx: idx, pos: -1}, nil
}

func (s *Source) CountRows(ctx context.Context, table string) (int64, error) {
	if err := s.CountErr[table]; err != nil {
		return 0, err
	}
	t, ok := s.tables[table]
	if !ok {
		return 0, fmt.Errorf("no table %s", table)
	}
	return int64(len(t.Rows)), nil
}

type cursor struct {
	table   *Table
	columns *db.ColumnSet
	idx     []int
	pos     int
	closed  bool
}

func (c *cursor) Columns() *db.ColumnSet { return c.columns }

func (c *cursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.table.Rows) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Row() (db.Row, error) {
	src := c.table.Rows[c.pos]
	values := make([]any, len(c.idx))
	for i, j := range c.idx {
		values[i] = src[j]
	}
	return db.NewRow(c.columns, values)
}

func (c *cursor) Err() error { return nil }

func (c *cursor) Close() error {
	c.closed = true
	return nil
}

// ErrInjected is returned by Destination operations configured to fail.
var ErrInjected = errors.New("injected failure")

// DestTable is a destination table with its committed rows.
type DestTable struct {
	Def  db.TableDef
	Rows [][]any
}

// Destination records every write so tests can assert on batch boundaries.
type Destination struct {
	mu        sync.Mutex
	namespace string
	tables    map[string]*DestTable
	pending   map[string][][]any
	Closed    bool

	NamespaceCalls int
	CreateCalls    int
	Truncated      []string
	BatchSizes     []int
	Commits        int

	// FailNamespace makes EnsureNamespace fail.
	FailNamespace bool
	// FailCreate makes CreateTable fail for the named table.
	FailCreate map[string]bool
	// FailAtBatch makes the n-th InsertBatch call (1-based) fail.
	FailAtBatch int
	// FailCount makes CountRows fail for the named table.
	FailCount map[string]bool
}

func NewDestination(namespace string) *Destination {
	return &Destination{
		namespace:  namespace,
		tables:     map[string]*DestTable{},
		pending:    map[string][][]any{},
		FailCreate: map[string]bool{},
		FailCount:  map[string]bool{},
	}
}

func (d *Destination) Close() error {
	d.Closed = true
	d.pending = map[string][][]any{}
	return nil
}

func (d *Destination) Namespace() string { return d.namespace }

func (d *Destination) EnsureNamespace(ctx context.Context) error {
	d.NamespaceCalls++
	if d.FailNamespace {
		return ErrInjected
	}
	return nil
}

// CreateTable keeps an existing table untouched.
func (d *Destination) CreateTable(ctx context.Context, def db.TableDef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CreateCalls++
	if d.FailCreate[def.Name] {
		return ErrInjected
	}
	if _, ok := d.tables[def.Name]; !ok {
		d.tables[def.Name] = &DestTable{Def: def}
	}
	return nil
}

func (d *Destination) Truncate(ctx context.Context, table string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Truncated = append(d.Truncated, table)
	if t, ok := d.tables[table]; ok {
		t.Rows = nil
	}
	return nil
}

func (d *Destination) PrepareInsert(table string, columns *db.ColumnSet) db.InsertStatement {
	return db.NewInsertStatement(table, columns)
}

func (d *Destination) InsertBatch(ctx context.Context, stmt db.InsertStatement, batch *db.Batch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !stmt.Accepts(batch) {
		return db.ErrColumnMismatch
	}
	d.BatchSizes = append(d.BatchSizes, batch.Len())
	if d.FailAtBatch > 0 && len(d.BatchSizes) == d.FailAtBatch {
		d.pending = map[string][][]any{}
		return ErrInjected
	}
	if _, ok := d.tables[stmt.Table]; !ok {
		return fmt.Errorf("table %s does not exist", stmt.Table)
	}
	for _, row := range batch.Rows() {
		d.pending[stmt.Table] = append(d.pending[stmt.Table], append([]any(nil), row.Values()...))
	}
	return nil
}

func (d *Destination) Commit(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Commits++
	for name, rows := range d.pending {
		d.tables[name].Rows = append(d.tables[name].Rows, rows...)
	}
	d.pending = map[string][][]any{}
	return nil
}

func (d *Destination) CountRows(ctx context.Context, table string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCount[table] {
		return 0, ErrInjected
	}
	t, ok := d.tables[table]
	if !ok {
		return 0, fmt.Errorf("table %s does not exist", table)
	}
	return int64(len(t.Rows)), nil
}

// Table returns a destination table, or nil when it was never created.
func (d *Destination) Table(name string) *DestTable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tables[name]
}

// TableCount returns the number of created tables.
func (d *Destination) TableCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables)
}
