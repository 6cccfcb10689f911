package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

const ruleColumns = `id, user_id, name, amount_cents, due_day, category_id, start_date, end_date, active`

func scanRule(row scanner) (core.RecurringExpense, error) {
	var (
		r     core.RecurringExpense
		start string
		end   sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Amount.Cents, &r.DueDay, &r.CategoryID, &start, &end, &r.Active); err != nil {
		return core.RecurringExpense{}, err
	}
	d, err := parseDateColumn(start)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	r.StartDate = d
	if end.Valid && end.String != "" {
		if r.EndDate, err = parseDateColumn(end.String); err != nil {
			return core.RecurringExpense{}, err
		}
	}
	return r, nil
}

func (q *Queries) listRules(ctx context.Context, what, query string, args ...any) ([]core.RecurringExpense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var out []core.RecurringExpense
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return out, nil
}

func (q *Queries) CreateRule(ctx context.Context, r core.RecurringExpense) (core.RecurringExpense, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO recurring_expenses (user_id, name, amount_cents, due_day, category_id, start_date, end_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		r.UserID, r.Name, r.Amount.Cents, r.DueDay, r.CategoryID, dateArg(r.StartDate), nullDateArg(r.EndDate), r.Active,
	).Scan(&r.ID)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("create recurring expense: %w", err)
	}
	return r, nil
}

func (q *Queries) GetRule(ctx context.Context, userID, id int64) (core.RecurringExpense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_expenses WHERE id = ? AND user_id = ?`, id, userID)
	r, err := scanRule(row)
	if err != nil {
		return core.RecurringExpense{}, notFoundIfNoRows(err, fmt.Sprintf("get recurring expense %d", id))
	}
	return r, nil
}

func (q *Queries) ListRules(ctx context.Context, userID int64) ([]core.RecurringExpense, error) {
	return q.listRules(ctx, "list recurring expenses",
		`SELECT `+ruleColumns+` FROM recurring_expenses WHERE user_id = ? ORDER BY name, id`, userID)
}

// ListActiveRules returns the active rules whose date range overlaps p,
// ordered by name then id.
func (q *Queries) ListActiveRules(ctx context.Context, userID int64, p core.Period) ([]core.RecurringExpense, error) {
	return q.listRules(ctx, "list active recurring expenses", `
		SELECT `+ruleColumns+` FROM recurring_expenses
		WHERE user_id = ? AND active = 1
		  AND start_date <= ?
		  AND (end_date IS NULL OR end_date >= ?)
		ORDER BY name, id`,
		userID, dateArg(p.LastDay()), dateArg(p.FirstDay()))
}

func (q *Queries) UpdateRule(ctx context.Context, r core.RecurringExpense) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recurring_expenses
		SET name = ?, amount_cents = ?, due_day = ?, category_id = ?, start_date = ?, end_date = ?, active = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		r.Name, r.Amount.Cents, r.DueDay, r.CategoryID, dateArg(r.StartDate), nullDateArg(r.EndDate), r.Active,
		r.ID, r.UserID)
	if err != nil {
		return fmt.Errorf("update recurring expense %d: %w", r.ID, err)
	}
	return requireAffected(res, fmt.Sprintf("update recurring expense %d", r.ID))
}

func (q *Queries) SetRuleActive(ctx context.Context, userID, id int64, active bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?`,
		active, id, userID)
	if err != nil {
		return fmt.Errorf("set recurring expense %d active=%t: %w", id, active, err)
	}
	return requireAffected(res, fmt.Sprintf("set recurring expense %d active", id))
}

// DeleteRule removes the rule and its payment markers.
func (q *Queries) DeleteRule(ctx context.Context, userID, id int64) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM paid_recurring_expenses WHERE user_id = ? AND recurring_expense_id = ?`, userID, id); err != nil {
		return fmt.Errorf("delete markers of recurring expense %d: %w", id, err)
	}
	res, err := q.db.ExecContext(ctx, `DELETE FROM recurring_expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring expense %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("delete recurring expense %d", id))
}

// ListPaidRuleIDs returns the ids of the rules marked paid for p.
func (q *Queries) ListPaidRuleIDs(ctx context.Context, userID int64, p core.Period) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT recurring_expense_id FROM paid_recurring_expenses
		WHERE user_id = ? AND year = ? AND month = ?`,
		userID, p.Year, p.Month)
	if err != nil {
		return nil, fmt.Errorf("list paid recurring expenses: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan paid recurring expense: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMarkers returns the payment markers of p, ordered by rule id.
func (q *Queries) ListMarkers(ctx context.Context, userID int64, p core.Period) ([]core.PaidRecurringExpense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, recurring_expense_id, day, month, year FROM paid_recurring_expenses
		WHERE user_id = ? AND year = ? AND month = ?
		ORDER BY recurring_expense_id`,
		userID, p.Year, p.Month)
	if err != nil {
		return nil, fmt.Errorf("list payment markers: %w", err)
	}
	defer rows.Close()

	var out []core.PaidRecurringExpense
	for rows.Next() {
		var m core.PaidRecurringExpense
		if err := rows.Scan(&m.ID, &m.UserID, &m.RecurringExpenseID, &m.Day, &m.Month, &m.Year); err != nil {
			return nil, fmt.Errorf("scan payment marker: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMarkers marks the listed rules paid for p. Only rules owned by the
// user get a marker and existing markers are left untouched, so repeating
// the call is harmless. When day is zero each marker records the rule's due
// day clamped to the month. It returns the number of markers created.
func (q *Queries) CreateMarkers(ctx context.Context, userID int64, ruleIDs []int64, p core.Period, day int) (int64, error) {
	if len(ruleIDs) == 0 {
		return 0, nil
	}
	marks, args := inClause(ruleIDs)
	res, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO paid_recurring_expenses (user_id, recurring_expense_id, day, month, year)
		SELECT user_id, id, CASE WHEN ? > 0 THEN ? ELSE MIN(due_day, ?) END, ?, ?
		FROM recurring_expenses
		WHERE user_id = ? AND id IN (`+marks+`)`,
		append([]any{day, day, core.DaysIn(p.Year, p.Month), p.Month, p.Year, userID}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("create payment markers: %w", err)
	}
	return res.RowsAffected()
}

// DeleteMarkers removes the markers of the listed rules for p. Missing
// markers are not an error.
func (q *Queries) DeleteMarkers(ctx context.Context, userID int64, ruleIDs []int64, p core.Period) (int64, error) {
	if len(ruleIDs) == 0 {
		return 0, nil
	}
	marks, args := inClause(ruleIDs)
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM paid_recurring_expenses
		WHERE user_id = ? AND year = ? AND month = ? AND recurring_expense_id IN (`+marks+`)`,
		append([]any{userID, p.Year, p.Month}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("delete payment markers: %w", err)
	}
	return res.RowsAffected()
}
