package storage

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?) RETURNING id`,
		c.UserID, c.Name).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("create category %q: %w", c.Name, core.ErrConflict)
		}
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (q *Queries) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	c := core.Category{}
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE id = ? AND user_id = ?`,
		id, userID).Scan(&c.ID, &c.UserID, &c.Name)
	if err != nil {
		return core.Category{}, notFoundIfNoRows(err, fmt.Sprintf("get category %d", id))
	}
	return c, nil
}

func (q *Queries) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) RenameCategory(ctx context.Context, userID, id int64, name string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ?`,
		name, id, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rename category %q: %w", name, core.ErrConflict)
		}
		return fmt.Errorf("rename category %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("rename category %d", id))
}

// DeleteCategory removes the category with the rules and installment plans
// filed under it. Plain expenses keep existing with no category. Run it
// inside a transaction.
func (q *Queries) DeleteCategory(ctx context.Context, userID, id int64) error {
	if _, err := q.GetCategory(ctx, userID, id); err != nil {
		return err
	}

	stmts := []struct {
		what  string
		query string
		args  []any
	}{
		{"delete installment lines", `DELETE FROM expenses WHERE user_id = ? AND installment_origin_id IN
			(SELECT id FROM installment_expenses WHERE user_id = ? AND category_id = ?)`, []any{userID, userID, id}},
		{"delete installment plans", `DELETE FROM installment_expenses WHERE user_id = ? AND category_id = ?`, []any{userID, id}},
		{"delete payment markers", `DELETE FROM paid_recurring_expenses WHERE user_id = ? AND recurring_expense_id IN
			(SELECT id FROM recurring_expenses WHERE user_id = ? AND category_id = ?)`, []any{userID, userID, id}},
		{"delete recurring expenses", `DELETE FROM recurring_expenses WHERE user_id = ? AND category_id = ?`, []any{userID, id}},
		{"clear expense category", `UPDATE expenses SET category_id = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE user_id = ? AND category_id = ?`, []any{userID, id}},
	}
	for _, s := range stmts {
		if _, err := q.db.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("%s for category %d: %w", s.what, id, err)
		}
	}

	res, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("delete category %d", id))
}
