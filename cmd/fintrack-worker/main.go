package main

import (
	"context"
	"fmt"
	"os"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cfg, logger, err := cli.Bootstrap(applog.ComponentWorker)
	if err != nil {
		logger.Error("Startup failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Starting fintrack-worker")

	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Worker uses its own in-memory database; only a shared SQLite file reflects server writes")
	}

	ctx, stop := cli.SignalContext(context.Background())
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

// run exports until ctx is cancelled. The backend is closed before it
// returns.
func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	result, err := cli.InitBackend(ctx, logger, cfg, true)
	if err != nil {
		return fmt.Errorf("initialize %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
			return
		}
		logger.Info("Backend closed")
	}()
	b := result.Backend

	var consumer worker.MonthChangedConsumer
	if b.Events != nil {
		consumer = b.Events
	} else {
		logger.Info("AMQP disabled, relying on the periodic export sweep", "interval", cfg.ExportInterval)
	}

	exporter := worker.NewExportWorker(b.Repo, b.Projection, b.Writer)
	return exporter.Run(ctx, consumer, cfg.ExportInterval)
}
