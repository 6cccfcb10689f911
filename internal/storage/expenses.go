package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

const expenseColumns = `id, user_id, name, amount_cents, due_date, category_id, paid, installment_origin_id`

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e        core.Expense
		due      string
		category sql.NullInt64
		origin   sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Amount.Cents, &due, &category, &e.Paid, &origin); err != nil {
		return core.Expense{}, err
	}
	d, err := parseDateColumn(due)
	if err != nil {
		return core.Expense{}, err
	}
	e.DueDate = d
	e.CategoryID = nullInt(category)
	e.InstallmentOriginID = nullInt(origin)
	return e, nil
}

func (q *Queries) listExpenses(ctx context.Context, what, query string, args ...any) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return out, nil
}

func (q *Queries) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO expenses (user_id, name, amount_cents, due_date, category_id, paid, installment_origin_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		e.UserID, e.Name, e.Amount.Cents, dateArg(e.DueDate), nullIntArg(e.CategoryID), e.Paid, nullIntArg(e.InstallmentOriginID),
	).Scan(&e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (q *Queries) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, notFoundIfNoRows(err, fmt.Sprintf("get expense %d", id))
	}
	return e, nil
}

// UpdateExpense rewrites the editable fields. The installment link is kept.
func (q *Queries) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE expenses
		SET name = ?, amount_cents = ?, due_date = ?, category_id = ?, paid = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		e.Name, e.Amount.Cents, dateArg(e.DueDate), nullIntArg(e.CategoryID), e.Paid, e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update expense %d: %w", e.ID, err)
	}
	return requireAffected(res, fmt.Sprintf("update expense %d", e.ID))
}

func (q *Queries) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("delete expense %d", id))
}

// ListExpensesByPeriod returns the concrete expenses due in p, by due date
// then id.
func (q *Queries) ListExpensesByPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Expense, error) {
	return q.listExpenses(ctx, "list expenses by period", `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND due_date BETWEEN ? AND ?
		ORDER BY due_date, id`,
		userID, dateArg(p.FirstDay()), dateArg(p.LastDay()))
}

// ListExpensesByOrigin returns the lines generated by one installment plan.
func (q *Queries) ListExpensesByOrigin(ctx context.Context, userID, originID int64) ([]core.Expense, error) {
	return q.listExpenses(ctx, "list expenses by origin", `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND installment_origin_id = ?
		ORDER BY due_date, id`,
		userID, originID)
}

// SetExpensesPaid flips the paid flag of every listed expense the user owns
// in one statement and returns the due dates of the rows it touched.
// Ids owned by other users are ignored.
func (q *Queries) SetExpensesPaid(ctx context.Context, userID int64, ids []int64, paid bool) ([]core.Date, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks, args := inClause(ids)
	rows, err := q.db.QueryContext(ctx, `
		UPDATE expenses SET paid = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id IN (`+marks+`)
		RETURNING due_date`,
		append([]any{paid, userID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("set expenses paid=%t: %w", paid, err)
	}
	defer rows.Close()

	var dates []core.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan due date: %w", err)
		}
		d, err := parseDateColumn(s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
