package httpserver

import (
	"context"
	"net/http"
	"time"
)

type HealthHandler struct {
	Audit RunStore
}

type healthResponse struct {
	Status string `json:"status"`
	Audit  string `json:"audit"`
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Audit: "disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Audit.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unhealthy", "audit database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Audit: "ok"})
}
