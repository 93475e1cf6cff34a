package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	addr   string
	logger requestLogger
	status StatusSource
	runs   RunStore
}

type requestLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// New builds the status server. runs may be nil when no audit store is
// configured; the run history routes then answer 404.
func New(addr string, logger requestLogger, status StatusSource, runs RunStore) *Server {
	return &Server{addr: addr, logger: logger, status: status, runs: runs}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(RequestLogger(s.logger))

	r.Route("/api/v1", func(api chi.Router) {
		api.Method(http.MethodGet, "/health", HealthHandler{Audit: s.runs})
		api.Method(http.MethodGet, "/status", StatusHandler{Source: s.status})

		runs := &RunHandler{store: s.runs, logger: s.logger}
		api.Get("/runs", runs.List)
		api.Get("/runs/{id}", runs.Get)
	})

	return r
}
