package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type SnowflakeDestination struct {
	db       *sql.DB
	conn     *sql.Conn
	database string
	schema   string
	tx       *sql.Tx
}

func (s *SnowflakeDestination) Close() error {
	var errs []error
	if s.tx != nil {
		errs = append(errs, s.tx.Rollback())
		s.tx = nil
	}
	errs = append(errs, s.conn.Close(), s.db.Close())
	return errors.Join(errs...)
}

func (s *SnowflakeDestination) Namespace() string {
	return Qualify(s.database, s.schema)
}

// EnsureNamespace creates the database and schema when absent and makes them
// current for the session.
func (s *SnowflakeDestination) EnsureNamespace(ctx context.Context) error {
	db, sc := QuoteSnowflake(s.database), QuoteSnowflake(s.schema)
	for _, stmt := range []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"USE DATABASE " + db,
		"CREATE SCHEMA IF NOT EXISTS " + sc,
		"USE SCHEMA " + sc,
	} {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func (s *SnowflakeDestination) table(name string) string {
	return Qualify(s.database, s.schema, name)
}

func (s *SnowflakeDestination) CreateTable(ctx context.Context, def TableDef) error {
	if len(def.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", def.Name)
	}
	_, err := s.conn.ExecContext(ctx, CreateTableSQL(s.table(def.Name), def))
	return err
}

func (s *SnowflakeDestination) Truncate(ctx context.Context, table string) error {
	_, err := s.conn.ExecContext(ctx, "TRUNCATE TABLE IF EXISTS "+s.table(table))
	return err
}

func (s *SnowflakeDestination) PrepareInsert(table string, columns *ColumnSet) InsertStatement {
	return NewInsertStatement(s.table(table), columns)
}

// InsertBatch writes the batch as one multi-row insert inside the pending
// transaction, opening one if needed. A failed insert discards the pending
// transaction.
func (s *SnowflakeDestination) InsertBatch(ctx context.Context, stmt InsertStatement, batch *Batch) error {
	if !stmt.Accepts(batch) {
		return ErrColumnMismatch
	}
	if batch.Len() == 0 {
		return nil
	}
	if s.tx == nil {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		s.tx = tx
	}
	if _, err := s.tx.ExecContext(ctx, stmt.SQL(batch.Len()), stmt.Args(batch)...); err != nil {
		s.tx.Rollback() // nolint:errcheck
		s.tx = nil
		return err
	}
	return nil
}

func (s *SnowflakeDestination) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

func (s *SnowflakeDestination) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
