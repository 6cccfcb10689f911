package storage

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

const installmentColumns = `id, user_id, name, total_amount_cents, installments_quantity, first_due_date, category_id`

func scanInstallment(row scanner) (core.InstallmentExpense, error) {
	var (
		i     core.InstallmentExpense
		first string
	)
	if err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.TotalAmount.Cents, &i.Quantity, &first, &i.CategoryID); err != nil {
		return core.InstallmentExpense{}, err
	}
	d, err := parseDateColumn(first)
	if err != nil {
		return core.InstallmentExpense{}, err
	}
	i.FirstDueDate = d
	return i, nil
}

func (q *Queries) CreateInstallment(ctx context.Context, i core.InstallmentExpense) (core.InstallmentExpense, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO installment_expenses (user_id, name, total_amount_cents, installments_quantity, first_due_date, category_id)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		i.UserID, i.Name, i.TotalAmount.Cents, i.Quantity, dateArg(i.FirstDueDate), i.CategoryID,
	).Scan(&i.ID)
	if err != nil {
		return core.InstallmentExpense{}, fmt.Errorf("create installment expense: %w", err)
	}
	return i, nil
}

func (q *Queries) GetInstallment(ctx context.Context, userID, id int64) (core.InstallmentExpense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+installmentColumns+` FROM installment_expenses WHERE id = ? AND user_id = ?`, id, userID)
	i, err := scanInstallment(row)
	if err != nil {
		return core.InstallmentExpense{}, notFoundIfNoRows(err, fmt.Sprintf("get installment expense %d", id))
	}
	return i, nil
}

func (q *Queries) ListInstallments(ctx context.Context, userID int64) ([]core.InstallmentExpense, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+installmentColumns+` FROM installment_expenses WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list installment expenses: %w", err)
	}
	defer rows.Close()

	var out []core.InstallmentExpense
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installment expense: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// DeleteInstallment removes the plan and every expense it generated. It
// returns how many generated expenses were removed. Run it inside a
// transaction.
func (q *Queries) DeleteInstallment(ctx context.Context, userID, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE user_id = ? AND installment_origin_id = ?`, userID, id)
	if err != nil {
		return 0, fmt.Errorf("delete lines of installment expense %d: %w", id, err)
	}
	lines, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete lines of installment expense %d: %w", id, err)
	}

	res, err = q.db.ExecContext(ctx, `DELETE FROM installment_expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete installment expense %d: %w", id, err)
	}
	if err := requireAffected(res, fmt.Sprintf("delete installment expense %d", id)); err != nil {
		return 0, err
	}
	return lines, nil
}
