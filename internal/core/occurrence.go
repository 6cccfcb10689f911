package core

import (
	"sort"
	"strconv"
)

// Source tells where a projected occurrence comes from.
type Source uint8

const (
	// SourceExpense is a stored concrete expense.
	SourceExpense Source = iota + 1
	// SourceRecurring is synthesized from a recurring rule for one month.
	SourceRecurring
)

func (s Source) String() string {
	switch s {
	case SourceExpense:
		return "expense"
	case SourceRecurring:
		return "recurring"
	default:
		return "unknown"
	}
}

// Occurrence is one line of a projected month. ID is the expense id for
// concrete occurrences and the rule id for virtual ones; the pair
// (Source, ID) is unique within a projection.
type Occurrence struct {
	Source              Source
	ID                  int64
	Name                string
	Amount              Money
	DueDate             Date
	CategoryID          *int64
	Paid                bool
	InstallmentOriginID *int64
}

// ConcreteOccurrence wraps a stored expense.
func ConcreteOccurrence(e Expense) Occurrence {
	return Occurrence{
		Source:              SourceExpense,
		ID:                  e.ID,
		Name:                e.Name,
		Amount:              e.Amount,
		DueDate:             e.DueDate,
		CategoryID:          e.CategoryID,
		Paid:                e.Paid,
		InstallmentOriginID: e.InstallmentOriginID,
	}
}

// VirtualOccurrence synthesizes the occurrence of rule r in period p. The due
// day is clamped to the month length.
func VirtualOccurrence(r RecurringExpense, p Period, paid bool) Occurrence {
	category := r.CategoryID
	return Occurrence{
		Source:     SourceRecurring,
		ID:         r.ID,
		Name:       r.Name,
		Amount:     r.Amount,
		DueDate:    SafeDueDate(p.Year, p.Month, r.DueDay),
		CategoryID: &category,
		Paid:       paid,
	}
}

func (o Occurrence) IsRecurring() bool {
	return o.Source == SourceRecurring
}

func (o Occurrence) IsInstallment() bool {
	return o.InstallmentOriginID != nil
}

// LegacyID returns the signed id older clients expect: negative rule ids
// for virtual occurrences.
func (o Occurrence) LegacyID() int64 {
	if o.IsRecurring() {
		return -o.ID
	}
	return o.ID
}

// Reference returns the payment reference that addresses this occurrence.
func (o Occurrence) Reference() Reference {
	switch {
	case o.IsRecurring():
		return Reference{Kind: RecurringOccurrence, ID: o.ID}
	case o.IsInstallment():
		return Reference{Kind: InstallmentLine, ID: o.ID}
	default:
		return Reference{Kind: ConcreteExpense, ID: o.ID}
	}
}

// Key is a stable string identity, e.g. "e:12" or "r:3".
func (o Occurrence) Key() string {
	return string(o.Reference().Kind) + ":" + strconv.FormatInt(o.ID, 10)
}

// MergeOccurrences concatenates concrete and virtual occurrences and sorts
// them by due date. The sort is stable, so concrete occurrences precede
// virtual ones on the same date and each input keeps its relative order.
func MergeOccurrences(concrete, virtual []Occurrence) []Occurrence {
	out := make([]Occurrence, 0, len(concrete)+len(virtual))
	out = append(out, concrete...)
	out = append(out, virtual...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate.Time)
	})
	return out
}
