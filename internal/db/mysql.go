package db

import (
	"context"
	"database/sql"
	"fmt"
)

type MySQLSource struct {
	db *sql.DB
}

func (m *MySQLSource) Close() error { return m.db.Close() }

// ListTables returns base tables of the connected database in name order.
// Views are skipped.
func (m *MySQLSource) ListTables(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DescribeTable returns column names and raw column types in ordinal order.
func (m *MySQLSource) DescribeTable(ctx context.Context, table string) ([]Column, error) {
	rows, err := m.db.QueryContext(ctx, `
SELECT column_name, column_type
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.SourceType); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns found for table %s", table)
	}
	return cols, nil
}

// Scan starts a full-table scan. The driver streams rows from the server, so
// only the current row is held by the cursor.
func (m *MySQLSource) Scan(ctx context.Context, table string) (RowCursor, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT * FROM "+quoteMySQL(table))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	names, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	return &sqlCursor{rows: rows, columns: NewColumnSet(names)}, nil
}

func (m *MySQLSource) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteMySQL(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

type sqlCursor struct {
	rows    *sql.Rows
	columns *ColumnSet
}

func (c *sqlCursor) Columns() *ColumnSet { return c.columns }

func (c *sqlCursor) Next() bool { return c.rows.Next() }

func (c *sqlCursor) Row() (Row, error) {
	values := make([]any, c.columns.Len())
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return Row{}, err
	}
	return NewRow(c.columns, values)
}

func (c *sqlCursor) Err() error { return c.rows.Err() }

func (c *sqlCursor) Close() error { return c.rows.Close() }
