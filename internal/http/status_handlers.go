package httpserver

import (
	"net/http"

	"mysql2snowflake/internal/status"
)

type StatusSource interface {
	Snapshot() status.Snapshot
}

// StatusHandler serves the live view of the current run.
type StatusHandler struct {
	Source StatusSource
}

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		writeError(w, http.StatusServiceUnavailable, "no_run", "no run is being tracked")
		return
	}
	writeJSON(w, http.StatusOK, h.Source.Snapshot())
}
