package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql2snowflake/internal/db"
	"mysql2snowflake/internal/migrate"
	"mysql2snowflake/internal/status"
	"mysql2snowflake/internal/store"
)

type fakeRuns struct {
	runs    []store.Run
	detail  map[uuid.UUID]*store.RunWithTables
	pingErr error
	listErr error
	limit   int
}

func (f *fakeRuns) List(_ context.Context, limit int) ([]store.Run, error) {
	f.limit = limit
	return f.runs, f.listErr
}

func (f *fakeRuns) Get(_ context.Context, id uuid.UUID) (*store.RunWithTables, error) {
	run, ok := f.detail[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeRuns) Ping(context.Context) error { return f.pingErr }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthWithoutAudit(t *testing.T) {
	h := New(":0", quietLogger(), status.NewTracker(), nil).Handler()

	rec := serve(t, h, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","audit":"disabled"}`, rec.Body.String())
}

func TestHealthAuditDown(t *testing.T) {
	h := New(":0", quietLogger(), status.NewTracker(), &fakeRuns{pingErr: errors.New("refused")}).Handler()

	rec := serve(t, h, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "service_unhealthy")
}

func TestStatusReturnsSnapshot(t *testing.T) {
	tr := status.NewTracker()
	id := uuid.New()
	tr.PhaseChanged(id, "", migrate.PhaseProvisioning)
	tr.TableProvisioned("orders", []db.ColumnDef{{Name: "id"}})

	rec := serve(t, New(":0", quietLogger(), tr, nil).Handler(), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap status.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.RunID)
	assert.Equal(t, id, *snap.RunID)
	assert.Equal(t, migrate.PhaseProvisioning, snap.Phase)
	require.Len(t, snap.Tables, 1)
	assert.Equal(t, status.TableProvisioned, snap.Tables[0].State)
}

func TestRunsDisabledWithoutAudit(t *testing.T) {
	h := New(":0", quietLogger(), status.NewTracker(), nil).Handler()
	assert.Equal(t, http.StatusNotFound, serve(t, h, "/api/v1/runs").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, "/api/v1/runs/"+uuid.NewString()).Code)
}

func TestRunsListAndGet(t *testing.T) {
	id := uuid.New()
	matched := true
	count := int64(3)
	runs := &fakeRuns{
		runs: []store.Run{{ID: id, Status: store.StatusDone, Phase: "done", StartedAt: time.Now().UTC()}},
		detail: map[uuid.UUID]*store.RunWithTables{
			id: {
				Run:    store.Run{ID: id, Status: store.StatusDone},
				Tables: []store.RunTable{{Table: "orders", RowsLoaded: 3, SourceCount: &count, DestinationCount: &count, Matched: &matched}},
			},
		},
	}
	h := New(":0", quietLogger(), status.NewTracker(), runs).Handler()

	rec := serve(t, h, "/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.limit)
	var list []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	rec = serve(t, h, "/api/v1/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var detail store.RunWithTables
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Len(t, detail.Tables, 1)
	assert.True(t, *detail.Tables[0].Matched)

	assert.Equal(t, http.StatusNotFound, serve(t, h, "/api/v1/runs/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, "/api/v1/runs/not-a-uuid").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, "/api/v1/runs?limit=abc").Code)
}

func TestRunsListFailure(t *testing.T) {
	h := New(":0", quietLogger(), status.NewTracker(), &fakeRuns{listErr: errors.New("boom")}).Handler()
	rec := serve(t, h, "/api/v1/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "lookup_failed")
}

func TestStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := New("127.0.0.1:0", quietLogger(), status.NewTracker(), nil)

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
