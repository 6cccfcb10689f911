package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// PaymentResult reports what a reconciliation touched.
type PaymentResult struct {
	ExpensesUpdated int `json:"expenses_updated"`
	MarkersChanged  int `json:"markers_changed"`
}

// PaymentService marks and unmarks batches of concrete expenses and
// recurring occurrences as paid.
type PaymentService struct {
	repo   *storage.SQLiteRepository
	events notifier
	now    func() time.Time
}

func NewPaymentService(repo *storage.SQLiteRepository, publisher EventPublisher) *PaymentService {
	return &PaymentService{
		repo:   repo,
		events: notifier{publisher: publisher},
		now:    time.Now,
	}
}

// Reconcile validates raw batch items and applies action to them. A
// malformed item, or recurring items without month and year, reject the
// whole batch before anything is written.
func (s *PaymentService) Reconcile(ctx context.Context, userID int64, action core.Action, items []core.RawReference, month, year *int) (PaymentResult, error) {
	refs, err := core.ParseReferences(items)
	if err != nil {
		return PaymentResult{}, err
	}
	batch, err := core.NewPaymentBatch(refs, month, year)
	if err != nil {
		return PaymentResult{}, err
	}

	switch action {
	case core.ActionMark:
		return s.Mark(ctx, userID, batch)
	case core.ActionUnmark:
		return s.Unmark(ctx, userID, batch)
	default:
		return PaymentResult{}, core.NewFieldError("action", fmt.Sprintf("Unknown action %q.", action))
	}
}

// Mark sets every concrete expense of the batch paid and records a payment
// marker for every rule. Already paid items stay paid.
func (s *PaymentService) Mark(ctx context.Context, userID int64, batch core.PaymentBatch) (PaymentResult, error) {
	return s.apply(ctx, userID, batch, true)
}

// Unmark clears the paid flag and removes the markers. Items that were not
// paid are left alone.
func (s *PaymentService) Unmark(ctx context.Context, userID int64, batch core.PaymentBatch) (PaymentResult, error) {
	return s.apply(ctx, userID, batch, false)
}

func (s *PaymentService) apply(ctx context.Context, userID int64, batch core.PaymentBatch, paid bool) (PaymentResult, error) {
	if len(batch.Rules) > 0 && batch.Period == nil {
		v := &core.ValidationError{}
		v.Add("month", "Month is required for recurring expenses.")
		v.Add("year", "Year is required for recurring expenses.")
		return PaymentResult{}, v
	}
	if batch.Empty() {
		return PaymentResult{}, nil
	}

	var (
		dates   []core.Date
		markers int64
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if dates, err = q.SetExpensesPaid(ctx, userID, batch.Concrete, paid); err != nil {
			return err
		}
		if len(batch.Rules) == 0 {
			return nil
		}
		if paid {
			markers, err = q.CreateMarkers(ctx, userID, batch.Rules, *batch.Period, s.markerDay(*batch.Period))
		} else {
			markers, err = q.DeleteMarkers(ctx, userID, batch.Rules, *batch.Period)
		}
		return err
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("set paid=%t for user %d: %w", paid, userID, err)
	}

	result := PaymentResult{ExpensesUpdated: len(dates), MarkersChanged: int(markers)}
	slog.InfoContext(ctx, "Payment status updated",
		"user_id", userID,
		"paid", paid,
		"expenses", result.ExpensesUpdated,
		"markers", result.MarkersChanged)

	changed := periodSet{}
	changed.addDates(dates...)
	if len(batch.Rules) > 0 {
		changed.add(*batch.Period)
	}
	reason := ReasonUnmark
	if paid {
		reason = ReasonMark
	}
	s.events.monthsChanged(ctx, userID, changed.sorted(), reason)

	return result, nil
}

// markerDay is today when paying for the current month. For other months
// zero lets the store fall back to the rule's due day.
func (s *PaymentService) markerDay(p core.Period) int {
	now := s.now()
	if core.PeriodOf(now) == p {
		return now.Day()
	}
	return 0
}
