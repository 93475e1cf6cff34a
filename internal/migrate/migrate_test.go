package migrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/db/dbtest"
	"mysql2snowflake/internal/load"
	"mysql2snowflake/internal/schema"
	"mysql2snowflake/internal/verify"
)

func ordersSource() *dbtest.Source {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return dbtest.NewSource().AddTable("orders", dbtest.Table{
		Columns: []db.Column{
			{Name: "id", SourceType: "int"},
			{Name: "total", SourceType: "double"},
			{Name: "created_at", SourceType: "datetime"},
			{Name: "note", SourceType: "varchar(255)"},
		},
		Rows: [][]any{
			{int64(1), 9.5, created, []byte("first")},
			{int64(2), 12.0, created, nil},
			{int64(3), 0.25, created, []byte("third")},
		},
	})
}

func runner(src *dbtest.Source, dst *dbtest.Destination) *Runner {
	return New(
		func(context.Context) (db.Source, error) { return src, nil },
		func(context.Context) (db.Destination, error) { return dst, nil },
		Options{BatchSize: 2, LoadMode: load.Append, Matching: schema.Anchored},
		nil,
	)
}

type phases struct {
	seen        []Phase
	provisioned []string
	verified    []verify.Report
}

func (p *phases) PhaseChanged(_ uuid.UUID, _, to Phase) {
	p.seen = append(p.seen, to)
}

func (p *phases) TableProvisioned(table string, _ []db.ColumnDef) {
	p.provisioned = append(p.provisioned, table)
}

func (p *phases) TableStarted(string) {}

func (p *phases) BatchCommitted(string, int, int64) {}

func (p *phases) TableLoaded(load.TableStats) {}

func (p *phases) TableVerified(r verify.Report) {
	p.verified = append(p.verified, r)
}

type memRecorder struct {
	started  []Run
	phases   []Phase
	finished []Result
	errs     []error
	fail     bool
}

func (m *memRecorder) RunStarted(_ context.Context, run Run) error {
	m.started = append(m.started, run)
	if m.fail {
		return errors.New("recorder down")
	}
	return nil
}

func (m *memRecorder) PhaseChanged(_ context.Context, _ uuid.UUID, _, to Phase) error {
	m.phases = append(m.phases, to)
	return nil
}

func (m *memRecorder) RunFinished(_ context.Context, res Result, runErr error) error {
	m.finished = append(m.finished, res)
	m.errs = append(m.errs, runErr)
	return nil
}

func TestRunOrdersEndToEnd(t *testing.T) {
	src := ordersSource()
	dst := dbtest.NewDestination("INSTACART_DB.RAW")
	obs := &phases{}

	res, err := runner(src, dst).Observe(obs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, res.Phase)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	assert.Equal(t, []string{"orders"}, res.Tables)
	assert.Equal(t, []db.ColumnDef{
		{Name: "id", Type: schema.Integer},
		{Name: "total", Type: schema.Float},
		{Name: "created_at", Type: schema.Timestamp},
		{Name: "note", Type: schema.String},
	}, dst.Table("orders").Def.Columns)
	assert.Equal(t, []verify.Report{{Table: "orders", SourceCount: 3, DestinationCount: 3, Matched: true}}, res.Reports)
	assert.True(t, res.Matched())
	require.Len(t, res.Loaded, 1)
	assert.Equal(t, 2, res.Loaded[0].Batches)

	assert.Equal(t, []Phase{
		PhaseConnecting, PhaseProvisioning, PhaseLoading, PhaseVerifying, PhaseClosingConnections, PhaseDone,
	}, obs.seen)
	assert.Equal(t, []string{"orders"}, obs.provisioned)
	assert.Equal(t, res.Reports, obs.verified)
	assert.True(t, src.Closed)
	assert.True(t, dst.Closed)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestRunTwiceDuplicatesRows(t *testing.T) {
	src := ordersSource()
	dst := dbtest.NewDestination("INSTACART_DB.RAW")
	r := runner(src, dst)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Reports, 1)
	assert.Equal(t, int64(6), res.Reports[0].DestinationCount)
	assert.False(t, res.Reports[0].Matched)
	assert.False(t, res.Matched())
	assert.Equal(t, 1, dst.TableCount())
}

func TestRunTruncateModeConverges(t *testing.T) {
	src := ordersSource()
	dst := dbtest.NewDestination("INSTACART_DB.RAW")
	r := runner(src, dst)
	r.opts.LoadMode = load.Truncate

	for i := 0; i < 2; i++ {
		res, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Matched())
	}
}

func TestRunSourceConnectionFailure(t *testing.T) {
	dst := dbtest.NewDestination("X.Y")
	obs := &phases{}
	destOpened := false
	r := New(
		func(context.Context) (db.Source, error) { return nil, errors.New("access denied") },
		func(context.Context) (db.Destination, error) {
			destOpened = true
			return dst, nil
		},
		Options{BatchSize: 10},
		nil,
	).Observe(obs)

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, PhaseFailed, res.Phase)
	assert.Equal(t, []Phase{PhaseConnecting, PhaseFailed}, obs.seen)
	assert.False(t, destOpened)
	assert.False(t, dst.Closed)
}

func TestRunDestinationConnectionFailureClosesSource(t *testing.T) {
	src := ordersSource()
	r := New(
		func(context.Context) (db.Source, error) { return src, nil },
		func(context.Context) (db.Destination, error) { return nil, errors.New("bad account") },
		Options{BatchSize: 10},
		nil,
	)

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, PhaseFailed, res.Phase)
	assert.True(t, src.Closed)
}

func TestRunSchemaFailureClosesConnections(t *testing.T) {
	src := ordersSource()
	dst := dbtest.NewDestination("INSTACART_DB.RAW")
	dst.FailCreate["orders"] = true
	obs := &phases{}

	res, err := runner(src, dst).Observe(obs).Run(context.Background())
	require.ErrorIs(t, err, ErrSchema)
	require.ErrorIs(t, err, dbtest.ErrInjected)
	assert.Equal(t, []Phase{
		PhaseConnecting, PhaseProvisioning, PhaseClosingConnections, PhaseFailed,
	}, obs.seen)
	assert.Equal(t, PhaseFailed, res.Phase)
	assert.Empty(t, dst.BatchSizes)
	assert.True(t, src.Closed)
	assert.True(t, dst.Closed)
}

func TestRunLoadFailureKeepsCommittedBatches(t *testing.T) {
	src := ordersSource()
	dst := dbtest.NewDestination("INSTACART_DB.RAW")
	dst.FailAtBatch = 2

	res, err := runner(src, dst).Run(context.Background())
	require.ErrorIs(t, err, ErrLoad)
	le, ok := load.AsError(err)
	require.True(t, ok)
	assert.Equal(t, int64(2), le.Committed)
	assert.Len(t, dst.Table("orders").Rows, 2)
	assert.Empty(t, res.Reports)
	assert.True(t, dst.Closed)
}

func TestRunVerifyFailure(t *testing.T) {
	src := ordersSource()
	src.CountErr["orders"] = errors.New("count timed out")
	dst := dbtest.NewDestination("INSTACART_DB.RAW")

	res, err := runner(src, dst).Run(context.Background())
	require.ErrorIs(t, err, ErrVerify)
	assert.Equal(t, PhaseFailed, res.Phase)
	assert.True(t, src.Closed)
}

func TestRunRecordsOutcome(t *testing.T) {
	rec := &memRecorder{}
	r := runner(ordersSource(), dbtest.NewDestination("INSTACART_DB.RAW")).RecordWith(rec)
	r.opts.SourceDatabase = "instacart"

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.started, 1)
	assert.Equal(t, res.RunID, rec.started[0].ID)
	assert.Equal(t, "instacart", rec.started[0].SourceDatabase)
	assert.Equal(t, PhaseDone, rec.phases[len(rec.phases)-1])
	require.Len(t, rec.finished, 1)
	assert.Equal(t, res.Reports, rec.finished[0].Reports)
	assert.NoError(t, rec.errs[0])
}

func TestRecorderFailureIsNotFatal(t *testing.T) {
	rec := &memRecorder{fail: true}
	_, err := runner(ordersSource(), dbtest.NewDestination("INSTACART_DB.RAW")).RecordWith(rec).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.finished, 1)
}

func TestPhaseTerminal(t *testing.T) {
	assert.True(t, PhaseDone.Terminal())
	assert.True(t, PhaseFailed.Terminal())
	assert.False(t, PhaseLoading.Terminal())
}
