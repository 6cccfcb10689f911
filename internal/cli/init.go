// Package cli provides common CLI initialization utilities shared by
// cmd/fintrack and cmd/fintrack-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
)

// LoadEnvFile loads .env files for local development. A missing file is not
// an error; values already in the environment win.
func LoadEnvFile(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Bootstrap loads configuration and installs the process logger for
// component. The logger is returned even when validation fails so the
// caller can report the problem.
func Bootstrap(component string) (*config.Config, *applog.Logger, error) {
	envErr := LoadEnvFile()
	cfg := config.Load()
	logger := applog.Setup(cfg.SlogLevel(), component)
	if envErr != nil {
		logger.Warn("Ignoring unreadable .env file", applog.FieldError, envErr)
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, logger, nil
}

// InitBackend builds the store, services and integrations from cfg. export
// adds the month writer used by the worker.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config, export bool) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcfg.Export = export
	return backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
