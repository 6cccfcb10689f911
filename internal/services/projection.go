package services

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// ProjectionService answers "what do I owe this month" by merging stored
// expenses with the occurrences synthesized from recurring rules.
type ProjectionService struct {
	repo *storage.SQLiteRepository
}

func NewProjectionService(repo *storage.SQLiteRepository) *ProjectionService {
	return &ProjectionService{repo: repo}
}

// Project returns every occurrence due in the month, sorted by due date.
// Nothing is written.
func (s *ProjectionService) Project(ctx context.Context, userID int64, year, month int) ([]core.Occurrence, error) {
	p, err := core.ValidateMonthYear(year, month)
	if err != nil {
		return nil, err
	}
	return s.ProjectPeriod(ctx, userID, p)
}

// ProjectPeriod is Project for an already validated period.
func (s *ProjectionService) ProjectPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Occurrence, error) {
	var (
		expenses []core.Expense
		rules    []core.RecurringExpense
		paidIDs  []int64
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if expenses, err = q.ListExpensesByPeriod(ctx, userID, p); err != nil {
			return err
		}
		if rules, err = q.ListActiveRules(ctx, userID, p); err != nil {
			return err
		}
		paidIDs, err = q.ListPaidRuleIDs(ctx, userID, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("project %s for user %d: %w", p, userID, err)
	}

	paid := make(map[int64]struct{}, len(paidIDs))
	for _, id := range paidIDs {
		paid[id] = struct{}{}
	}

	concrete := make([]core.Occurrence, 0, len(expenses))
	for _, e := range expenses {
		concrete = append(concrete, core.ConcreteOccurrence(e))
	}

	virtual := make([]core.Occurrence, 0, len(rules))
	for _, r := range rules {
		if !r.Covers(p) {
			continue
		}
		_, isPaid := paid[r.ID]
		virtual = append(virtual, core.VirtualOccurrence(r, p, isPaid))
	}

	return core.MergeOccurrences(concrete, virtual), nil
}

// AvailableMonths lists the months with at least one stored expense or
// payment marker, newest first. Months where a rule is merely active are
// not listed.
func (s *ProjectionService) AvailableMonths(ctx context.Context, userID int64) ([]core.Period, error) {
	periods, err := s.repo.Queries().AvailablePeriods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("available months for user %d: %w", userID, err)
	}
	return periods, nil
}

// MonthSummary totals the projection of a month.
func (s *ProjectionService) MonthSummary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error) {
	p, err := core.ValidateMonthYear(year, month)
	if err != nil {
		return core.MonthSummary{}, err
	}
	occurrences, err := s.ProjectPeriod(ctx, userID, p)
	if err != nil {
		return core.MonthSummary{}, err
	}
	return core.Summarize(p, occurrences), nil
}
