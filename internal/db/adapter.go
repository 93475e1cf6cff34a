package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/snowflakedb/gosnowflake"
)

// Source is the database rows are copied from.
type Source interface {
	Close() error
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) ([]Column, error)
	Scan(ctx context.Context, table string) (RowCursor, error)
	CountRows(ctx context.Context, table string) (int64, error)
}

// RowCursor iterates over a full-table scan one row at a time.
type RowCursor interface {
	Columns() *ColumnSet
	Next() bool
	Row() (Row, error)
	Err() error
	Close() error
}

// Destination is the warehouse rows are copied into. Writes issued through
// InsertBatch stay pending until Commit.
type Destination interface {
	Close() error
	Namespace() string
	EnsureNamespace(ctx context.Context) error
	CreateTable(ctx context.Context, def TableDef) error
	Truncate(ctx context.Context, table string) error
	PrepareInsert(table string, columns *ColumnSet) InsertStatement
	InsertBatch(ctx context.Context, stmt InsertStatement, batch *Batch) error
	Commit(ctx context.Context) error
	CountRows(ctx context.Context, table string) (int64, error)
}

// OpenSource connects to MySQL and verifies the connection.
func OpenSource(ctx context.Context, dsn string) (*MySQLSource, error) {
	// Validate DSN early to provide actionable errors.
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxOpenConns(5)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &MySQLSource{db: db}, nil
}

// OpenDestination connects to Snowflake and pins a single session, so that
// USE statements and batch transactions share one connection. database and
// schema name the namespace tables are created in.
func OpenDestination(ctx context.Context, dsn, database, schema string) (*SnowflakeDestination, error) {
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect snowflake: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("ping snowflake: %w", err)
	}
	return &SnowflakeDestination{
		db:       db,
		conn:     conn,
		database: database,
		schema:   schema,
	}, nil
}
