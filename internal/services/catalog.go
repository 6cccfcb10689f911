package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// ruleWindow is how many months, ending with the current one, a rule change
// announces. Older months are announced only when they hold a payment marker
// of the rule.
const ruleWindow = 12

// CatalogService is plain user scoped CRUD over categories, recurring rules
// and concrete expenses.
type CatalogService struct {
	repo   *storage.SQLiteRepository
	events notifier
	now    func() time.Time
}

func NewCatalogService(repo *storage.SQLiteRepository, publisher EventPublisher) *CatalogService {
	return &CatalogService{repo: repo, events: notifier{publisher: publisher}, now: time.Now}
}

func (s *CatalogService) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	c := core.Category{UserID: userID, Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.repo.Queries().CreateCategory(ctx, c)
}

func (s *CatalogService) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.repo.Queries().ListCategories(ctx, userID)
}

func (s *CatalogService) RenameCategory(ctx context.Context, userID, id int64, name string) (core.Category, error) {
	c := core.Category{ID: id, UserID: userID, Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.repo.Queries().RenameCategory(ctx, userID, id, c.Name); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

// DeleteCategory removes the category together with its rules and
// installment plans. Other expenses filed under it become uncategorized.
// Every month that loses an installment line, a marker or a rule occurrence
// is announced.
func (s *CatalogService) DeleteCategory(ctx context.Context, userID, id int64) error {
	var (
		periods []core.Period
		rules   []core.RecurringExpense
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetCategory(ctx, userID, id); err != nil {
			return err
		}
		var err error
		if periods, err = q.CategoryPeriods(ctx, userID, id); err != nil {
			return err
		}
		all, err := q.ListRules(ctx, userID)
		if err != nil {
			return err
		}
		for _, r := range all {
			if r.CategoryID == id {
				rules = append(rules, r)
			}
		}
		return q.DeleteCategory(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Category deleted", "user_id", userID, "id", id, "rules", len(rules))

	changed := s.ruleMonths(rules...)
	for _, p := range periods {
		changed.add(p)
	}
	s.events.monthsChanged(ctx, userID, changed.sorted(), ReasonCategory)
	return nil
}

func (s *CatalogService) CreateRule(ctx context.Context, userID int64, r core.RecurringExpense) (core.RecurringExpense, error) {
	r.ID = 0
	r.UserID = userID
	if err := r.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}

	var created core.RecurringExpense
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := ownCategory(ctx, q, userID, r.CategoryID); err != nil {
			return err
		}
		var err error
		created, err = q.CreateRule(ctx, r)
		return err
	})
	if err != nil {
		return core.RecurringExpense{}, err
	}
	s.ruleChanged(ctx, userID, nil, created)
	return created, nil
}

func (s *CatalogService) GetRule(ctx context.Context, userID, id int64) (core.RecurringExpense, error) {
	return s.repo.Queries().GetRule(ctx, userID, id)
}

func (s *CatalogService) ListRules(ctx context.Context, userID int64) ([]core.RecurringExpense, error) {
	return s.repo.Queries().ListRules(ctx, userID)
}

func (s *CatalogService) UpdateRule(ctx context.Context, userID int64, r core.RecurringExpense) (core.RecurringExpense, error) {
	r.UserID = userID
	if err := r.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	var (
		previous core.RecurringExpense
		markers  []core.Period
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if previous, err = q.GetRule(ctx, userID, r.ID); err != nil {
			return err
		}
		if err := ownCategory(ctx, q, userID, r.CategoryID); err != nil {
			return err
		}
		if markers, err = q.RuleMarkerPeriods(ctx, userID, r.ID); err != nil {
			return err
		}
		return q.UpdateRule(ctx, r)
	})
	if err != nil {
		return core.RecurringExpense{}, err
	}
	s.ruleChanged(ctx, userID, markers, previous, r)
	return r, nil
}

func (s *CatalogService) SetRuleActive(ctx context.Context, userID, id int64, active bool) (core.RecurringExpense, error) {
	var r core.RecurringExpense
	var markers []core.Period
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if err := q.SetRuleActive(ctx, userID, id, active); err != nil {
			return err
		}
		var err error
		if markers, err = q.RuleMarkerPeriods(ctx, userID, id); err != nil {
			return err
		}
		r, err = q.GetRule(ctx, userID, id)
		return err
	})
	if err != nil {
		return core.RecurringExpense{}, err
	}
	s.ruleChanged(ctx, userID, markers, r)
	return r, nil
}

// DeleteRule removes the rule and its payment markers.
func (s *CatalogService) DeleteRule(ctx context.Context, userID, id int64) error {
	var (
		r       core.RecurringExpense
		markers []core.Period
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if r, err = q.GetRule(ctx, userID, id); err != nil {
			return err
		}
		if markers, err = q.RuleMarkerPeriods(ctx, userID, id); err != nil {
			return err
		}
		return q.DeleteRule(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	s.ruleChanged(ctx, userID, markers, r)
	return nil
}

// ruleChanged announces the months of the rule window covered by any of
// rules, plus the months holding one of the rule's markers. Months after the
// current one are exported once they become current.
func (s *CatalogService) ruleChanged(ctx context.Context, userID int64, markers []core.Period, rules ...core.RecurringExpense) {
	changed := s.ruleMonths(rules...)
	for _, p := range markers {
		changed.add(p)
	}
	s.events.monthsChanged(ctx, userID, changed.sorted(), ReasonRecurring)
}

// ruleMonths returns the months of the rule window covered by any of rules.
func (s *CatalogService) ruleMonths(rules ...core.RecurringExpense) periodSet {
	changed := periodSet{}
	if len(rules) == 0 {
		return changed
	}
	current := core.PeriodOf(s.now())
	p := core.AddMonths(current.FirstDay(), 1-ruleWindow).Period()
	for i := 0; i < ruleWindow; i++ {
		for _, r := range rules {
			if r.Covers(p) {
				changed.add(p)
				break
			}
		}
		p = p.Next()
	}
	return changed
}

func (s *CatalogService) CreateExpense(ctx context.Context, userID int64, e core.Expense) (core.Expense, error) {
	e.ID = 0
	e.UserID = userID
	e.InstallmentOriginID = nil
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	var created core.Expense
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if e.CategoryID != nil {
			if err := ownCategory(ctx, q, userID, *e.CategoryID); err != nil {
				return err
			}
		}
		var err error
		created, err = q.CreateExpense(ctx, e)
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense saved", "user_id", userID, "id", created.ID, "amount_cents", created.Amount.Cents)
	s.events.monthsChanged(ctx, userID, []core.Period{created.DueDate.Period()}, ReasonExpense)
	return created, nil
}

func (s *CatalogService) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.repo.Queries().GetExpense(ctx, userID, id)
}

// UpdateExpense rewrites an expense. Its installment link cannot change.
func (s *CatalogService) UpdateExpense(ctx context.Context, userID int64, e core.Expense) (core.Expense, error) {
	e.UserID = userID
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	changed := periodSet{}
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		existing, err := q.GetExpense(ctx, userID, e.ID)
		if err != nil {
			return err
		}
		if e.CategoryID != nil {
			if err := ownCategory(ctx, q, userID, *e.CategoryID); err != nil {
				return err
			}
		}
		e.InstallmentOriginID = existing.InstallmentOriginID
		changed.addDates(existing.DueDate, e.DueDate)
		return q.UpdateExpense(ctx, e)
	})
	if err != nil {
		return core.Expense{}, err
	}
	s.events.monthsChanged(ctx, userID, changed.sorted(), ReasonExpense)
	return e, nil
}

func (s *CatalogService) DeleteExpense(ctx context.Context, userID, id int64) error {
	var existing core.Expense
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if existing, err = q.GetExpense(ctx, userID, id); err != nil {
			return err
		}
		return q.DeleteExpense(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	s.events.monthsChanged(ctx, userID, []core.Period{existing.DueDate.Period()}, ReasonExpense)
	return nil
}
