// Package provision creates destination tables for every source table.
package provision

import (
	"context"
	"fmt"
	"log/slog"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/schema"
)

// Observer is notified after each table is created (or found to exist).
type Observer interface {
	TableProvisioned(table string, columns []db.ColumnDef)
}

type Provisioner struct {
	src        db.Source
	dst        db.Destination
	translator schema.Translator
	logger     *slog.Logger
	observer   Observer
}

func New(src db.Source, dst db.Destination, translator schema.Translator, logger *slog.Logger, observer Observer) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{src: src, dst: dst, translator: translator, logger: logger, observer: observer}
}

// Provision ensures the destination namespace exists, then issues a
// create-if-absent for every source table. Existing tables are not altered.
// It returns the source table list in the order it was processed; the first
// failure aborts the whole pass.
func (p *Provisioner) Provision(ctx context.Context) ([]string, error) {
	if err := p.dst.EnsureNamespace(ctx); err != nil {
		return nil, fmt.Errorf("ensure namespace %s: %w", p.dst.Namespace(), err)
	}
	p.logger.Info("destination namespace ready", "namespace", p.dst.Namespace())

	tables, err := p.src.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		def, err := p.Define(ctx, table)
		if err != nil {
			return nil, err
		}
		if err := p.dst.CreateTable(ctx, def); err != nil {
			return nil, fmt.Errorf("create table %s: %w", table, err)
		}
		p.logger.Info("table provisioned", "table", table, "namespace", p.dst.Namespace(), "columns", len(def.Columns))
		if p.observer != nil {
			p.observer.TableProvisioned(table, def.Columns)
		}
	}
	return tables, nil
}

// Define builds the destination definition for one source table, keeping the
// column order of the metadata catalog.
func (p *Provisioner) Define(ctx context.Context, table string) (db.TableDef, error) {
	cols, err := p.src.DescribeTable(ctx, table)
	if err != nil {
		return db.TableDef{}, err
	}
	def := db.TableDef{Name: table, Columns: make([]db.ColumnDef, len(cols))}
	for i, c := range cols {
		tr := p.translator.Classify(c.SourceType)
		if tr.Ambiguous {
			p.logger.Warn("ambiguous column type",
				"table", table,
				"column", c.Name,
				"source_type", c.SourceType,
				"destination_type", tr.Type.String(),
				"matching", string(p.translator.Matching),
			)
		}
		def.Columns[i] = db.ColumnDef{Name: c.Name, Type: tr.Type}
	}
	return def, nil
}
