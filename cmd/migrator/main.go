package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"mysql2snowflake/internal/audit"
	"mysql2snowflake/internal/config"
	"mysql2snowflake/internal/db"
	httpserver "mysql2snowflake/internal/http"
	"mysql2snowflake/internal/logging"
	"mysql2snowflake/internal/migrate"
	"mysql2snowflake/internal/progress"
	"mysql2snowflake/internal/status"
	"mysql2snowflake/internal/store"
	"mysql2snowflake/internal/verify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	runner := migrate.New(
		func(ctx context.Context) (db.Source, error) {
			src, err := db.OpenSource(ctx, cfg.Source.DSN())
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		func(ctx context.Context) (db.Destination, error) {
			dsn, err := cfg.Destination.DSN()
			if err != nil {
				return nil, fmt.Errorf("invalid snowflake config: %w", err)
			}
			dst, err := db.OpenDestination(ctx, dsn, cfg.Destination.Database, cfg.Destination.Schema)
			if err != nil {
				return nil, err
			}
			return dst, nil
		},
		migrate.Options{
			BatchSize:            cfg.BatchSize,
			LoadMode:             cfg.LoadMode,
			Matching:             cfg.TypeMatching,
			SourceDatabase:       cfg.Source.Database,
			DestinationNamespace: cfg.Destination.Namespace(),
		},
		logger,
	)

	tracker := status.NewTracker()
	runner.Observe(tracker)
	if cfg.Progress {
		runner.Observe(progress.NewBars(os.Stderr))
	}

	var runs httpserver.RunStore
	if cfg.AuditDSN != "" {
		pool, err := openAudit(ctx, cfg.AuditDSN, logger)
		if err != nil {
			logger.Warn("audit store unavailable, continuing without it", "error", err)
		} else {
			defer pool.Close()
			runner.RecordWith(audit.NewRecorder(pool, logger))
			runs = store.Runs{Pool: pool}
		}
	}

	if cfg.HTTPAddress != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := httpserver.New(cfg.HTTPAddress, logger, tracker, runs).Start(srvCtx); err != nil {
				logger.Error("status server stopped with error", "error", err)
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	res, err := runner.Run(ctx)
	if len(res.Reports) > 0 {
		fmt.Println(verify.Describe(cfg.Destination.Schema, res.Reports))
	}
	return err
}

func openAudit(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := store.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit migrations: %w", err)
	}
	return pool, nil
}
