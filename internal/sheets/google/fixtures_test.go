package google

import (
	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

func sheetsExport() sheets.MonthExport {
	p := core.Period{Year: 2025, Month: 4}
	occ := []core.Occurrence{{
		Source:  core.SourceExpense,
		ID:      1,
		Name:    "Rent",
		Amount:  core.Money{Cents: 90000},
		DueDate: core.NewDate(2025, 4, 1),
	}}
	return sheets.MonthExport{UserID: 7, Period: p, Occurrences: occ, Summary: core.Summarize(p, occ)}
}
