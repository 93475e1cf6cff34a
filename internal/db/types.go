package db

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"mysql2snowflake/internal/schema"
)

// ErrColumnMismatch is returned when a row is combined with a batch or
// statement built from a different column set.
var ErrColumnMismatch = errors.New("row column set does not match batch")

// Column describes a source column as reported by the metadata catalog.
type Column struct {
	Name       string
	SourceType string
}

// ColumnDef is a destination column definition.
type ColumnDef struct {
	Name string
	Type schema.DestinationType
}

// TableDef describes a destination table to create.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// ColumnSet is the ordered list of column names captured from a scan.
// It is immutable once created.
type ColumnSet struct {
	names []string
}

func NewColumnSet(names []string) *ColumnSet {
	return &ColumnSet{names: append([]string(nil), names...)}
}

func (c *ColumnSet) Names() []string { return append([]string(nil), c.names...) }

func (c *ColumnSet) Len() int { return len(c.names) }

// Row holds the values of one source row, positionally aligned with the
// column set that produced it.
type Row struct {
	columns *ColumnSet
	values  []any
}

// NewRow binds values to a column set. The value count must match.
func NewRow(columns *ColumnSet, values []any) (Row, error) {
	if columns == nil {
		return Row{}, errors.New("row requires a column set")
	}
	if len(values) != columns.Len() {
		return Row{}, fmt.Errorf("row has %d values for %d columns", len(values), columns.Len())
	}
	return Row{columns: columns, values: values}, nil
}

func (r Row) Columns() *ColumnSet { return r.columns }

func (r Row) Values() []any { return r.values }

// Batch is a bounded group of rows sharing one column set.
type Batch struct {
	columns *ColumnSet
	rows    []Row
}

func NewBatch(columns *ColumnSet, capacity int) *Batch {
	return &Batch{columns: columns, rows: make([]Row, 0, capacity)}
}

func (b *Batch) Append(row Row) error {
	if row.columns != b.columns {
		return ErrColumnMismatch
	}
	b.rows = append(b.rows, row)
	return nil
}

func (b *Batch) Len() int { return len(b.rows) }

func (b *Batch) Rows() []Row { return b.rows }

func (b *Batch) Columns() *ColumnSet { return b.columns }

// Reset empties the batch, keeping its capacity.
func (b *Batch) Reset() {
	clear(b.rows)
	b.rows = b.rows[:0]
}

// InsertStatement is a parameterized insert for one table, rendered once per
// table from the scan's column set.
type InsertStatement struct {
	Table   string
	columns *ColumnSet
	prefix  string
	group   string
}

func (s InsertStatement) Columns() *ColumnSet { return s.columns }

// Accepts reports whether the batch can be written with this statement.
func (s InsertStatement) Accepts(b *Batch) bool {
	return b != nil && s.columns != nil && b.columns == s.columns
}

// SQL returns the statement text for a multi-row insert of n rows.
func (s InsertStatement) SQL(n int) string {
	if n <= 1 {
		return s.prefix + s.group
	}
	var sb strings.Builder
	sb.Grow(len(s.prefix) + n*(len(s.group)+2))
	sb.WriteString(s.prefix)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(s.group)
	}
	return sb.String()
}

// Args flattens the batch values in row order.
func (s InsertStatement) Args(b *Batch) []any {
	args := make([]any, 0, b.Len()*s.columns.Len())
	for _, row := range b.rows {
		for _, v := range row.values {
			args = append(args, normalizeValue(v))
		}
	}
	return args
}

// normalizeValue turns raw driver bytes into bind values. Temporal columns
// arrive as MySQL text, so zero dates become NULL. Bytes that are not valid
// UTF-8 (BLOB, BINARY, BIT) are bound as lowercase hex.
func normalizeValue(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if !utf8.Valid(b) {
		return hex.EncodeToString(b)
	}
	if isZeroDate(b) {
		return nil
	}
	return string(b)
}

// isZeroDate matches 0000-00-00, optionally followed by a zero time and
// fractional seconds.
func isZeroDate(b []byte) bool {
	const zero = "0000-00-00"
	if len(b) < len(zero) || string(b[:len(zero)]) != zero {
		return false
	}
	rest := strings.TrimLeft(string(b[len(zero):]), " 0:.")
	return rest == ""
}
