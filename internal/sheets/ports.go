// Package sheets renders projected months as spreadsheet rows and defines
// the port the export worker writes them through.
package sheets

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

type (
	// MonthExport is everything needed to render one user month.
	MonthExport struct {
		UserID      int64
		Period      core.Period
		Occurrences []core.Occurrence
		Summary     core.MonthSummary
		// CategoryNames maps category ids to display names.
		CategoryNames map[int64]string
	}

	// MonthWriter replaces the exported content of a month.
	MonthWriter interface {
		WriteMonth(ctx context.Context, export MonthExport) error
	}
)

// Header is the first row of every exported month.
var Header = []any{"Due date", "Name", "Amount", "Category", "Paid", "Source"}

// TabName names the tab holding a user month, e.g. "Expenses 7 2025-04".
func TabName(prefix string, userID int64, p core.Period) string {
	if prefix == "" {
		prefix = "Expenses"
	}
	return fmt.Sprintf("%s %d %s", prefix, userID, p)
}

// Render turns an export into rows: the header, one row per occurrence in
// projection order, a blank row, then the totals.
func Render(export MonthExport) [][]any {
	rows := make([][]any, 0, len(export.Occurrences)+5)
	rows = append(rows, Header)
	for _, o := range export.Occurrences {
		rows = append(rows, []any{
			o.DueDate.String(),
			o.Name,
			o.Amount.String(),
			categoryName(export.CategoryNames, o.CategoryID),
			yesNo(o.Paid),
			source(o),
		})
	}
	s := export.Summary
	rows = append(rows,
		[]any{},
		[]any{"", "Total", s.Total.String()},
		[]any{"", "Paid", s.Paid.String()},
		[]any{"", "Outstanding", s.Outstanding.String()},
	)
	return rows
}

func categoryName(names map[int64]string, id *int64) string {
	if id == nil {
		return ""
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", *id)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func source(o core.Occurrence) string {
	switch {
	case o.IsRecurring():
		return "recurring"
	case o.IsInstallment():
		return "installment"
	default:
		return "expense"
	}
}
