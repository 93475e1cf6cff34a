package status

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/load"
	"mysql2snowflake/internal/migrate"
	"mysql2snowflake/internal/verify"
)

var _ migrate.Observer = (*Tracker)(nil)

func TestTrackerFollowsRun(t *testing.T) {
	tr := NewTracker()
	id := uuid.New()

	tr.PhaseChanged(id, "", migrate.PhaseConnecting)
	tr.PhaseChanged(id, migrate.PhaseConnecting, migrate.PhaseProvisioning)
	tr.TableProvisioned("orders", []db.ColumnDef{{Name: "id"}, {Name: "note"}})
	tr.PhaseChanged(id, migrate.PhaseProvisioning, migrate.PhaseLoading)
	tr.TableStarted("orders")
	tr.BatchCommitted("orders", 2, 2)
	tr.BatchCommitted("orders", 1, 3)

	s := tr.Snapshot()
	require.NotNil(t, s.RunID)
	assert.Equal(t, id, *s.RunID)
	assert.Equal(t, migrate.PhaseLoading, s.Phase)
	require.Len(t, s.Tables, 1)
	assert.Equal(t, TableLoading, s.Tables[0].State)
	assert.Equal(t, 2, s.Tables[0].Columns)
	assert.Equal(t, int64(3), s.Tables[0].RowsLoaded)
	assert.Equal(t, 2, s.Tables[0].Batches)
	assert.NotNil(t, s.Tables[0].LastBatchAt)

	tr.TableLoaded(load.TableStats{Table: "orders", Rows: 3, Batches: 2, Duration: 1500 * time.Millisecond})
	tr.TableVerified(verify.NewReport("orders", 3, 3))

	s = tr.Snapshot()
	assert.Equal(t, TableVerified, s.Tables[0].State)
	assert.Equal(t, int64(1500), s.Tables[0].DurationMS)
	require.NotNil(t, s.Tables[0].Report)
	assert.True(t, s.Tables[0].Report.Matched)
}

func TestTrackerResetsOnNewRun(t *testing.T) {
	tr := NewTracker()
	tr.PhaseChanged(uuid.New(), "", migrate.PhaseConnecting)
	tr.TableProvisioned("orders", nil)

	tr.PhaseChanged(uuid.New(), "", migrate.PhaseConnecting)
	assert.Empty(t, tr.Snapshot().Tables)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.TableVerified(verify.NewReport("orders", 1, 1))

	s := tr.Snapshot()
	s.Tables[0].Report.SourceCount = 99
	assert.Equal(t, int64(1), tr.Snapshot().Tables[0].Report.SourceCount)
	assert.Nil(t, s.RunID)
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.BatchCommitted("orders", 1, int64(j))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, tr.Snapshot().Tables[0].Batches)
}
