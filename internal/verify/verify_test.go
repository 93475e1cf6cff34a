package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/db/dbtest"
	"mysql2snowflake/internal/schema"
)

func fixture(srcRows, dstRows int) (*dbtest.Source, *dbtest.Destination) {
	cols := []db.Column{{Name: "id", SourceType: "int"}}
	rows := make([][]any, srcRows)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	src := dbtest.NewSource().AddTable("orders", dbtest.Table{Columns: cols, Rows: rows})
	dst := dbtest.NewDestination("INSTACART_DB.RAW")
	ctx := context.Background()
	_ = dst.CreateTable(ctx, db.TableDef{Name: "orders", Columns: []db.ColumnDef{{Name: "id", Type: schema.Integer}}})

	set := db.NewColumnSet([]string{"id"})
	batch := db.NewBatch(set, dstRows)
	for i := 0; i < dstRows; i++ {
		row, _ := db.NewRow(set, []any{int64(i)})
		_ = batch.Append(row)
	}
	if dstRows > 0 {
		_ = dst.InsertBatch(ctx, dst.PrepareInsert("orders", set), batch)
		_ = dst.Commit(ctx)
	}
	return src, dst
}

type seen struct{ reports []Report }

func (s *seen) TableVerified(r Report) { s.reports = append(s.reports, r) }

func TestVerifyMatched(t *testing.T) {
	src, dst := fixture(3, 3)
	obs := &seen{}

	reports, err := New(src, dst, nil, obs).Verify(context.Background(), []string{"orders"})
	require.NoError(t, err)
	assert.Equal(t, []Report{{Table: "orders", SourceCount: 3, DestinationCount: 3, Matched: true}}, reports)
	assert.Equal(t, reports, obs.reports)
}

func TestVerifyInterruptedLoadIsReportedNotRaised(t *testing.T) {
	src, dst := fixture(5, 4)

	reports, err := New(src, dst, nil, nil).Verify(context.Background(), []string{"orders"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Matched)
	assert.Less(t, reports[0].DestinationCount, reports[0].SourceCount)
	assert.Equal(t, int64(-1), reports[0].Delta())
}

func TestVerifyCountFailureIsAnError(t *testing.T) {
	src, dst := fixture(1, 1)
	dst.FailCount["orders"] = true

	_, err := New(src, dst, nil, nil).Verify(context.Background(), []string{"orders"})
	require.ErrorIs(t, err, dbtest.ErrInjected)
}

func TestDescribe(t *testing.T) {
	out := Describe("RAW", []Report{
		NewReport("orders", 3, 3),
		NewReport("aisles", 10, 20),
	})
	assert.Equal(t, "Table 'RAW.orders': source=3 destination=3 match\n"+
		"Table 'RAW.aisles': source=10 destination=20 MISMATCH (+10)\n"+
		"2 tables verified, 1 with differences: aisles", out)

	assert.Equal(t, "Table 'RAW.orders': source=3 destination=3 match\n"+
		"1 tables verified, all counts match (3 rows)", Describe("RAW", []Report{NewReport("orders", 3, 3)}))

	assert.Equal(t, "no tables verified", Describe("RAW", nil))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Report{NewReport("a", 1, 1), NewReport("b", 2, 0)})
	assert.Equal(t, 2, s.Tables)
	assert.Equal(t, int64(3), s.SourceRows)
	assert.Equal(t, int64(1), s.DestRows)
	assert.Equal(t, []string{"b"}, s.Mismatched)
	assert.False(t, s.AllMatched())
}
