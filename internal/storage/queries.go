package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement the services need. Each method is scoped
// by user id; rows of other users are never read or written.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

// inClause returns "?, ?, ?" for n placeholders and the ids as args.
func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

func dateArg(d core.Date) string {
	return d.String()
}

func nullDateArg(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullIntArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseDateColumn(s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("scan date column: %w", err)
	}
	return d, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// notFoundIfNoRows maps sql.ErrNoRows to core.ErrNotFound.
func notFoundIfNoRows(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return nil
}

// ListUserIDs returns every user owning at least one expense or rule.
func (q *Queries) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id FROM expenses
		UNION
		SELECT user_id FROM recurring_expenses
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AvailablePeriods returns the months holding a concrete expense or a
// payment marker, newest first.
func (q *Queries) AvailablePeriods(ctx context.Context, userID int64) ([]core.Period, error) {
	return q.listPeriods(ctx, "available periods", `
		SELECT CAST(strftime('%Y', due_date) AS INTEGER) AS year,
		       CAST(strftime('%m', due_date) AS INTEGER) AS month
		FROM expenses WHERE user_id = ?
		UNION
		SELECT year, month FROM paid_recurring_expenses WHERE user_id = ?
		ORDER BY year DESC, month DESC`, userID, userID)
}

// CategoryPeriods returns the months that deleting the category rewrites:
// those of the expenses filed under it or generated by its installment
// plans, and those of the payment markers of its rules.
func (q *Queries) CategoryPeriods(ctx context.Context, userID, categoryID int64) ([]core.Period, error) {
	return q.listPeriods(ctx, "category periods", `
		SELECT CAST(strftime('%Y', due_date) AS INTEGER) AS year,
		       CAST(strftime('%m', due_date) AS INTEGER) AS month
		FROM expenses WHERE user_id = ? AND (category_id = ? OR installment_origin_id IN
			(SELECT id FROM installment_expenses WHERE user_id = ? AND category_id = ?))
		UNION
		SELECT year, month FROM paid_recurring_expenses WHERE user_id = ? AND recurring_expense_id IN
			(SELECT id FROM recurring_expenses WHERE user_id = ? AND category_id = ?)
		ORDER BY year, month`, userID, categoryID, userID, categoryID, userID, userID, categoryID)
}

// RuleMarkerPeriods returns the months in which the rule is marked paid.
func (q *Queries) RuleMarkerPeriods(ctx context.Context, userID, ruleID int64) ([]core.Period, error) {
	return q.listPeriods(ctx, "marker periods", `
		SELECT year, month FROM paid_recurring_expenses
		WHERE user_id = ? AND recurring_expense_id = ?
		ORDER BY year, month`, userID, ruleID)
}

func (q *Queries) listPeriods(ctx context.Context, what, query string, args ...any) ([]core.Period, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	var periods []core.Period
	for rows.Next() {
		var p core.Period
		if err := rows.Scan(&p.Year, &p.Month); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}
