package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mysql2snowflake/internal/store"
)

// RunStore reads the audit history of past runs.
type RunStore interface {
	List(ctx context.Context, limit int) ([]store.Run, error)
	Get(ctx context.Context, id uuid.UUID) (*store.RunWithTables, error)
	Ping(ctx context.Context) error
}

type RunHandler struct {
	store  RunStore
	logger requestLogger
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "run history requires an audit database")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "audit_disabled", "run history requires an audit database")
		return
	}
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid run id")
		return
	}
	run, err := h.store.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		h.logger.Error("get run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "failed to fetch run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
