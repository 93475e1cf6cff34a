// Package verify reconciles source and destination row counts after a load.
// Mismatches are reported, never repaired.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mysql2snowflake/internal/db"
)

// Report is the row-count comparison for one table.
type Report struct {
	Table            string `json:"table"`
	SourceCount      int64  `json:"source_count"`
	DestinationCount int64  `json:"destination_count"`
	Matched          bool   `json:"matched"`
}

// Delta is destination minus source; negative means rows are missing.
func (r Report) Delta() int64 { return r.DestinationCount - r.SourceCount }

func NewReport(table string, source, destination int64) Report {
	return Report{
		Table:            table,
		SourceCount:      source,
		DestinationCount: destination,
		Matched:          source == destination,
	}
}

// Observer is notified for every verified table.
type Observer interface {
	TableVerified(r Report)
}

type Verifier struct {
	src      db.Source
	dst      db.Destination
	logger   *slog.Logger
	observer Observer
}

func New(src db.Source, dst db.Destination, logger *slog.Logger, observer Observer) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{src: src, dst: dst, logger: logger, observer: observer}
}

// Verify counts rows on both sides for each table. A failed count query is
// returned as an error; a count mismatch is not.
func (v *Verifier) Verify(ctx context.Context, tables []string) ([]Report, error) {
	reports := make([]Report, 0, len(tables))
	for _, table := range tables {
		srcCount, err := v.src.CountRows(ctx, table)
		if err != nil {
			return reports, fmt.Errorf("source count: %w", err)
		}
		dstCount, err := v.dst.CountRows(ctx, table)
		if err != nil {
			return reports, fmt.Errorf("destination count: %w", err)
		}
		r := NewReport(table, srcCount, dstCount)
		reports = append(reports, r)

		args := []any{"table", table, "namespace", v.dst.Namespace(), "source_count", srcCount, "destination_count", dstCount}
		if r.Matched {
			v.logger.Info("table verified", args...)
		} else {
			v.logger.Warn("table count mismatch", append(args, "delta", r.Delta())...)
		}
		if v.observer != nil {
			v.observer.TableVerified(r)
		}
	}
	return reports, nil
}

// Summary aggregates a set of reports.
type Summary struct {
	Tables     int
	Mismatched []string
	SourceRows int64
	DestRows   int64
}

func Summarize(reports []Report) Summary {
	var s Summary
	for _, r := range reports {
		s.Tables++
		s.SourceRows += r.SourceCount
		s.DestRows += r.DestinationCount
		if !r.Matched {
			s.Mismatched = append(s.Mismatched, r.Table)
		}
	}
	return s
}

// AllMatched reports whether every table reconciled.
func (s Summary) AllMatched() bool { return len(s.Mismatched) == 0 }

// Describe returns a human-readable summary of the reports.
func Describe(namespace string, reports []Report) string {
	if len(reports) == 0 {
		return "no tables verified"
	}
	lines := make([]string, 0, len(reports)+1)
	for _, r := range reports {
		status := "match"
		if !r.Matched {
			status = fmt.Sprintf("MISMATCH (%+d)", r.Delta())
		}
		lines = append(lines, fmt.Sprintf("Table '%s.%s': source=%d destination=%d %s",
			namespace, r.Table, r.SourceCount, r.DestinationCount, status))
	}
	s := Summarize(reports)
	if s.AllMatched() {
		lines = append(lines, fmt.Sprintf("%d tables verified, all counts match (%d rows)", s.Tables, s.SourceRows))
	} else {
		lines = append(lines, fmt.Sprintf("%d tables verified, %d with differences: %s",
			s.Tables, len(s.Mismatched), strings.Join(s.Mismatched, ", ")))
	}
	return strings.Join(lines, "\n")
}
