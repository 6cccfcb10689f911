package core

import "testing"

func TestVirtualOccurrence(t *testing.T) {
	rule := RecurringExpense{
		ID:         7,
		Name:       "Gym",
		Amount:     Money{Cents: 4500},
		DueDay:     31,
		CategoryID: 3,
		StartDate:  NewDate(2025, 1, 1),
		Active:     true,
	}
	o := VirtualOccurrence(rule, Period{Year: 2025, Month: 4}, true)

	if o.Source != SourceRecurring || !o.IsRecurring() {
		t.Fatalf("expected recurring source, got %v", o.Source)
	}
	if o.ID != 7 || o.LegacyID() != -7 {
		t.Fatalf("expected id 7 / legacy -7, got %d / %d", o.ID, o.LegacyID())
	}
	if !o.DueDate.Equal(NewDate(2025, 4, 30).Time) {
		t.Fatalf("expected clamped due date, got %s", o.DueDate)
	}
	if !o.Paid || o.CategoryID == nil || *o.CategoryID != 3 {
		t.Fatalf("unexpected occurrence %+v", o)
	}
	if o.Key() != "r:7" {
		t.Fatalf("unexpected key %q", o.Key())
	}
}

func TestConcreteOccurrence(t *testing.T) {
	origin := int64(4)
	o := ConcreteOccurrence(Expense{ID: 12, Name: "TV (1/3)", Amount: Money{Cents: 100}, DueDate: NewDate(2025, 4, 1), InstallmentOriginID: &origin})
	if o.IsRecurring() || !o.IsInstallment() || o.LegacyID() != 12 {
		t.Fatalf("unexpected occurrence %+v", o)
	}
	if ref := o.Reference(); ref.Kind != InstallmentLine || ref.ID != 12 {
		t.Fatalf("unexpected reference %+v", ref)
	}
}

func TestMergeOccurrences(t *testing.T) {
	concrete := []Occurrence{
		{Source: SourceExpense, ID: 1, DueDate: NewDate(2025, 4, 5)},
		{Source: SourceExpense, ID: 2, DueDate: NewDate(2025, 4, 10)},
		{Source: SourceExpense, ID: 3, DueDate: NewDate(2025, 4, 10)},
	}
	virtual := []Occurrence{
		{Source: SourceRecurring, ID: 9, DueDate: NewDate(2025, 4, 10)},
		{Source: SourceRecurring, ID: 8, DueDate: NewDate(2025, 4, 1)},
		{Source: SourceRecurring, ID: 7, DueDate: NewDate(2025, 4, 10)},
	}

	got := MergeOccurrences(concrete, virtual)
	want := []string{"r:8", "e:1", "e:2", "e:3", "r:9", "r:7"}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(got))
	}
	for i, o := range got {
		if o.Key() != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], o.Key())
		}
	}
}
