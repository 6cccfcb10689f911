package services

import (
	"context"
	"log/slog"
	"sort"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// Event reasons carried by month changed messages.
const (
	ReasonMark        = "mark"
	ReasonUnmark      = "unmark"
	ReasonInstallment = "installment"
	ReasonExpense     = "expense"
	ReasonRecurring   = "recurring"
	ReasonCategory    = "category"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishMonthChanged(ctx context.Context, msg *amqp.MonthChangedMessage) error
}

// notifier publishes best effort: a failed publish is logged and never
// fails the operation that already committed.
type notifier struct {
	publisher EventPublisher
}

func (n notifier) monthsChanged(ctx context.Context, userID int64, periods []core.Period, reason string) {
	if len(periods) == 0 {
		return
	}
	if n.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping month changed messages",
			"user_id", userID, "months", len(periods))
		return
	}
	for _, p := range periods {
		msg := amqp.NewMonthChangedMessage(userID, p.Year, p.Month, reason)
		if err := n.publisher.PublishMonthChanged(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish month changed message",
				"user_id", userID,
				"year", p.Year,
				"month", p.Month,
				"reason", reason,
				"error", err)
		}
	}
}

// periodSet collects distinct periods in chronological order.
type periodSet map[core.Period]struct{}

func (s periodSet) add(p core.Period) {
	s[p] = struct{}{}
}

func (s periodSet) addDates(dates ...core.Date) {
	for _, d := range dates {
		if !d.IsZero() {
			s.add(d.Period())
		}
	}
}

func (s periodSet) sorted() []core.Period {
	out := make([]core.Period, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
