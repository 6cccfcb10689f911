package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// MonthChangedConsumer is satisfied by *amqp.Client.
type MonthChangedConsumer interface {
	ConsumeMonthChanged(ctx context.Context, handler func(context.Context, *amqp.MonthChangedMessage) error) error
}

// ExportWorker keeps the spreadsheet copy of every projected month up to
// date. Month changed messages trigger an export of that month; a periodic
// sweep re-exports the current month of every user, which also covers
// messages lost while the broker was unreachable.
type ExportWorker struct {
	repo       *storage.SQLiteRepository
	projection *services.ProjectionService
	writer     sheets.MonthWriter
	log        *applog.StructuredLogger
	now        func() time.Time
}

func NewExportWorker(repo *storage.SQLiteRepository, projection *services.ProjectionService, writer sheets.MonthWriter) *ExportWorker {
	return &ExportWorker{
		repo:       repo,
		projection: projection,
		writer:     writer,
		log:        applog.NewStructuredLogger(applog.FromContext(context.Background()).WithComponent(applog.ComponentWorker)),
		now:        time.Now,
	}
}

// HandleMonthChanged processes a single month changed message from AMQP.
func (w *ExportWorker) HandleMonthChanged(ctx context.Context, msg *amqp.MonthChangedMessage) error {
	slog.InfoContext(ctx, "Processing month changed message",
		"id", msg.ID,
		"user_id", msg.UserID,
		"year", msg.Year,
		"month", msg.Month,
		"reason", msg.Reason)

	p, err := core.ValidateMonthYear(msg.Year, msg.Month)
	if err != nil {
		// Redelivery would fail the same way.
		slog.WarnContext(ctx, "Dropping month changed message with invalid period",
			"id", msg.ID, "error", err)
		return nil
	}
	return w.ExportMonth(ctx, msg.UserID, p)
}

// ExportMonth projects one user month and hands it to the writer.
func (w *ExportWorker) ExportMonth(ctx context.Context, userID int64, p core.Period) error {
	occurrences, err := w.projection.ProjectPeriod(ctx, userID, p)
	if err != nil {
		return fmt.Errorf("project month: %w", err)
	}

	categories, err := w.repo.Queries().ListCategories(ctx, userID)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	export := sheets.MonthExport{
		UserID:        userID,
		Period:        p,
		Occurrences:   occurrences,
		Summary:       core.Summarize(p, occurrences),
		CategoryNames: names,
	}
	if err := w.writer.WriteMonth(ctx, export); err != nil {
		return fmt.Errorf("write month %s for user %d: %w", p, userID, err)
	}

	slog.InfoContext(ctx, "Month exported",
		"user_id", userID,
		"period", p.String(),
		"occurrences", len(occurrences),
		"outstanding", export.Summary.Outstanding.String())
	return nil
}

// ExportCurrentMonth re-exports the current month for every known user. A
// failing user is logged and skipped.
func (w *ExportWorker) ExportCurrentMonth(ctx context.Context) error {
	users, err := w.repo.Queries().ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	p := core.PeriodOf(w.now())
	successCount := 0
	errorCount := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.ExportMonth(ctx, userID, p); err != nil {
			w.log.LogError(ctx, "Failed to export current month", err, applog.ComponentWorker, applog.OpExport,
				applog.NewFields().WithUserID(userID).WithPeriod(p.String()))
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Current month sweep completed",
		"period", p.String(),
		"users", len(users),
		"exported", successCount,
		"errors", errorCount)
	return nil
}

// Run performs a startup sweep, then consumes messages and sweeps every
// interval until ctx is cancelled. A nil consumer disables message
// consumption; the periodic sweep still runs.
func (w *ExportWorker) Run(ctx context.Context, consumer MonthChangedConsumer, interval time.Duration) error {
	slog.InfoContext(ctx, "Performing startup export sweep...")
	if err := w.ExportCurrentMonth(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup export sweep failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeMonthChanged(ctx, w.HandleMonthChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		slog.InfoContext(ctx, "Skipping AMQP message consumption - no consumer available")
	}

	if interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := w.ExportCurrentMonth(ctx); err != nil && !errors.Is(err, context.Canceled) {
						slog.ErrorContext(ctx, "Periodic export failed", "error", err)
					}
				}
			}
		})
	}

	return g.Wait()
}
