package core

import "sort"

// CategoryAmount represents an amount aggregated by category.
// A nil CategoryID groups uncategorized occurrences.
type CategoryAmount struct {
	CategoryID *int64
	Amount     Money
}

// MonthSummary is a compact summary of one projected month.
type MonthSummary struct {
	Period      Period
	Count       int
	Total       Money
	Paid        Money
	Outstanding Money
	ByCategory  []CategoryAmount
}

// Summarize totals a projection. Categories are ordered by descending amount,
// uncategorized last.
func Summarize(p Period, occurrences []Occurrence) MonthSummary {
	s := MonthSummary{Period: p, Count: len(occurrences)}

	byCategory := make(map[int64]int64)
	var uncategorized int64
	for _, o := range occurrences {
		s.Total = s.Total.Add(o.Amount)
		if o.Paid {
			s.Paid = s.Paid.Add(o.Amount)
		}
		if o.CategoryID == nil {
			uncategorized += o.Amount.Cents
			continue
		}
		byCategory[*o.CategoryID] += o.Amount.Cents
	}
	s.Outstanding = s.Total.Sub(s.Paid)

	for id, cents := range byCategory {
		id := id
		s.ByCategory = append(s.ByCategory, CategoryAmount{CategoryID: &id, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		a, b := s.ByCategory[i], s.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return *a.CategoryID < *b.CategoryID
	})
	if uncategorized != 0 {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Amount: Money{Cents: uncategorized}})
	}
	return s
}
