package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type (
	InstallmentParams struct {
		Name         string
		TotalAmount  core.Money
		Quantity     int
		FirstDueDate core.Date
		CategoryID   int64
	}

	// InstallmentPlan is an installment origin with the expenses it owns.
	InstallmentPlan struct {
		Origin core.InstallmentExpense
		Lines  []core.Expense
	}
)

// Drift is how far the generated lines add up from the origin total.
func (p InstallmentPlan) Drift() core.Money {
	var sum core.Money
	for _, l := range p.Lines {
		sum = sum.Add(l.Amount)
	}
	return sum.Sub(p.Origin.TotalAmount)
}

// InstallmentService splits purchases into monthly concrete expenses.
type InstallmentService struct {
	repo   *storage.SQLiteRepository
	events notifier
}

func NewInstallmentService(repo *storage.SQLiteRepository, publisher EventPublisher) *InstallmentService {
	return &InstallmentService{repo: repo, events: notifier{publisher: publisher}}
}

// Expand stores the origin and one expense per installment, each due one
// calendar month after the previous and carrying the total divided by the
// quantity rounded to cents. The lines are not adjusted to absorb the
// rounding remainder.
func (s *InstallmentService) Expand(ctx context.Context, userID int64, params InstallmentParams) (InstallmentPlan, error) {
	origin := core.InstallmentExpense{
		UserID:       userID,
		Name:         params.Name,
		TotalAmount:  params.TotalAmount,
		Quantity:     params.Quantity,
		FirstDueDate: params.FirstDueDate,
		CategoryID:   params.CategoryID,
	}
	if err := origin.Validate(); err != nil {
		return InstallmentPlan{}, err
	}
	amount := core.InstallmentAmount(origin.TotalAmount, origin.Quantity)

	plan := InstallmentPlan{}
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := ownCategory(ctx, q, userID, params.CategoryID); err != nil {
			return err
		}

		created, err := q.CreateInstallment(ctx, origin)
		if err != nil {
			return err
		}
		plan.Origin = created

		originID, categoryID := created.ID, created.CategoryID
		lines := make([]core.Expense, 0, created.Quantity)
		for i := 0; i < created.Quantity; i++ {
			line, err := q.CreateExpense(ctx, core.Expense{
				UserID:              userID,
				Name:                fmt.Sprintf("%s (%d/%d)", created.Name, i+1, created.Quantity),
				Amount:              amount,
				DueDate:             core.AddMonths(created.FirstDueDate, i),
				CategoryID:          &categoryID,
				InstallmentOriginID: &originID,
			})
			if err != nil {
				return fmt.Errorf("create installment %d/%d: %w", i+1, created.Quantity, err)
			}
			lines = append(lines, line)
		}
		plan.Lines = lines
		return nil
	})
	if err != nil {
		return InstallmentPlan{}, err
	}

	slog.InfoContext(ctx, "Installment expense created",
		"user_id", userID,
		"id", plan.Origin.ID,
		"quantity", plan.Origin.Quantity,
		"installment_cents", amount.Cents,
		"drift_cents", plan.Drift().Cents)

	changed := periodSet{}
	for _, l := range plan.Lines {
		changed.addDates(l.DueDate)
	}
	s.events.monthsChanged(ctx, userID, changed.sorted(), ReasonInstallment)

	return plan, nil
}

func (s *InstallmentService) List(ctx context.Context, userID int64) ([]core.InstallmentExpense, error) {
	return s.repo.Queries().ListInstallments(ctx, userID)
}

func (s *InstallmentService) Get(ctx context.Context, userID, id int64) (InstallmentPlan, error) {
	var plan InstallmentPlan
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if plan.Origin, err = q.GetInstallment(ctx, userID, id); err != nil {
			return err
		}
		plan.Lines, err = q.ListExpensesByOrigin(ctx, userID, id)
		return err
	})
	if err != nil {
		return InstallmentPlan{}, err
	}
	return plan, nil
}

// Delete removes the origin together with every expense it generated.
func (s *InstallmentService) Delete(ctx context.Context, userID, id int64) error {
	changed := periodSet{}
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		lines, err := q.ListExpensesByOrigin(ctx, userID, id)
		if err != nil {
			return err
		}
		for _, l := range lines {
			changed.addDates(l.DueDate)
		}
		_, err = q.DeleteInstallment(ctx, userID, id)
		return err
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Installment expense deleted", "user_id", userID, "id", id)
	s.events.monthsChanged(ctx, userID, changed.sorted(), ReasonInstallment)
	return nil
}

// ownCategory turns a missing or foreign category into a field error.
func ownCategory(ctx context.Context, q *storage.Queries, userID, categoryID int64) error {
	if _, err := q.GetCategory(ctx, userID, categoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NotFoundField("category_id", "Category not found.")
		}
		return err
	}
	return nil
}
