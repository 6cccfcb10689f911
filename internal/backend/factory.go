package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := storage.NewSQLiteRepository(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	if config.Type == MemoryBackend {
		f.logger.Warn("Using in-memory database, data is lost on restart")
	}

	// AMQP is optional; without it writes are not announced.
	var events *amqp.Client
	if config.AMQPURL != "" {
		events, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			events = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	var publisher services.EventPublisher
	if events != nil {
		publisher = events
	}

	b := &Backend{
		Repo:         repo,
		Projection:   services.NewProjectionService(repo),
		Payments:     services.NewPaymentService(repo, publisher),
		Installments: services.NewInstallmentService(repo, publisher),
		Catalog:      services.NewCatalogService(repo, publisher),
		Events:       events,
	}

	if config.Export {
		b.Writer, err = f.createWriter(ctx, config)
		if err != nil {
			closeAll(repo, events)
			return nil, err
		}
	}

	f.logger.Info("Initialized backend",
		"type", config.Type,
		"db_path", config.DatabasePath(),
		"amqp_enabled", events != nil,
		"export_enabled", b.Writer != nil)

	return &BackendResult{
		Backend: b,
		Cleanup: func() error { return closeAll(repo, events) },
	}, nil
}

func (f *DefaultFactory) createWriter(ctx context.Context, config Config) (sheets.MonthWriter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Info("No spreadsheet configured, exporting to memory")
		return memory.New(), nil
	}
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		TabPrefix:       config.GoogleSheetPrefix,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets exporter", "spreadsheet_id", config.GoogleSpreadsheetID)
	return cli, nil
}

func closeAll(repo *storage.SQLiteRepository, events *amqp.Client) error {
	var errs []error
	if events != nil {
		errs = append(errs, events.Close())
	}
	errs = append(errs, repo.Close())
	return errors.Join(errs...)
}
