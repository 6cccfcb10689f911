package memory

import (
	"context"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

func TestStore_WriteMonthReplaces(t *testing.T) {
	s := New()
	p := core.Period{Year: 2025, Month: 4}
	occ := []core.Occurrence{{Source: core.SourceExpense, ID: 1, Name: "Rent", Amount: core.Money{Cents: 90000}, DueDate: core.NewDate(2025, 4, 1)}}

	if err := s.WriteMonth(context.Background(), sheets.MonthExport{UserID: 1, Period: p, Occurrences: occ, Summary: core.Summarize(p, occ)}); err != nil {
		t.Fatalf("WriteMonth() error = %v", err)
	}
	rows, ok := s.Get(1, p)
	if !ok || len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d (ok=%v)", len(rows), ok)
	}

	if err := s.WriteMonth(context.Background(), sheets.MonthExport{UserID: 1, Period: p}); err != nil {
		t.Fatalf("WriteMonth() error = %v", err)
	}
	rows, _ = s.Get(1, p)
	if len(rows) != 5 {
		t.Fatalf("expected rows to be replaced, got %d", len(rows))
	}
	if s.Writes() != 2 {
		t.Fatalf("expected 2 writes, got %d", s.Writes())
	}
	if _, ok := s.Get(2, p); ok {
		t.Fatal("other users should have nothing stored")
	}
}

func TestStore_WriteMonthCancelled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.WriteMonth(ctx, sheets.MonthExport{UserID: 1}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if s.Writes() != 0 {
		t.Fatal("cancelled write should not be recorded")
	}
}
