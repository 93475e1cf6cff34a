package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql2snowflake/internal/load"
	"mysql2snowflake/internal/migrate"
	"mysql2snowflake/internal/verify"
)

var _ migrate.Recorder = (*Recorder)(nil)

func TestTablesMergesStatsAndReports(t *testing.T) {
	res := migrate.Result{
		Tables: []string{"orders", "aisles", "products"},
		Loaded: []load.TableStats{
			{Table: "orders", Rows: 3, Batches: 1},
			{Table: "aisles", Rows: 10, Batches: 2},
		},
		Reports: []verify.Report{
			verify.NewReport("orders", 3, 3),
			verify.NewReport("aisles", 10, 8),
		},
	}

	tables := Tables(res)
	require.Len(t, tables, 3)

	assert.Equal(t, "orders", tables[0].Table)
	assert.Equal(t, int64(3), tables[0].RowsLoaded)
	require.NotNil(t, tables[0].Matched)
	assert.True(t, *tables[0].Matched)

	require.NotNil(t, tables[1].DestinationCount)
	assert.Equal(t, int64(8), *tables[1].DestinationCount)
	assert.False(t, *tables[1].Matched)

	assert.Equal(t, "products", tables[2].Table)
	assert.Zero(t, tables[2].RowsLoaded)
	assert.Nil(t, tables[2].SourceCount)
	assert.Nil(t, tables[2].Matched)
}

func TestTablesEmptyRun(t *testing.T) {
	assert.Empty(t, Tables(migrate.Result{}))
}
