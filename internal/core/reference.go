package core

import (
	"fmt"
)

// MaxBatchItems bounds a payment batch so its ids fit one SQL statement.
const MaxBatchItems = 1000

// ReferenceKind is the closed set of things a payment batch can address.
type ReferenceKind string

const (
	ConcreteExpense     ReferenceKind = "e"
	InstallmentLine     ReferenceKind = "i"
	RecurringOccurrence ReferenceKind = "r"
)

// Action selects what a reconciliation does to its batch.
type Action string

const (
	ActionMark   Action = "mark"
	ActionUnmark Action = "unmark"
)

type (
	// RawReference is a batch item exactly as received from a client.
	RawReference struct {
		Type string `json:"type"`
		ID   *int64 `json:"id"`
	}

	Reference struct {
		Kind ReferenceKind
		ID   int64
	}

	// PaymentBatch is a validated batch split by target. Concrete holds
	// expense ids ('e' and 'i' items), Rules holds recurring rule ids.
	// Period is set whenever Rules is not empty.
	PaymentBatch struct {
		Concrete []int64
		Rules    []int64
		Period   *Period
	}
)

func ParseReferenceKind(s string) (ReferenceKind, bool) {
	switch k := ReferenceKind(s); k {
	case ConcreteExpense, InstallmentLine, RecurringOccurrence:
		return k, true
	default:
		return "", false
	}
}

// ParseReferences validates every item. The first malformed item rejects
// the whole batch.
func ParseReferences(items []RawReference) ([]Reference, error) {
	if len(items) == 0 {
		return nil, NewFieldError("ids", "This list may not be empty.")
	}
	if len(items) > MaxBatchItems {
		return nil, NewFieldError("ids", fmt.Sprintf("Ensure this list has at most %d items.", MaxBatchItems))
	}
	refs := make([]Reference, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("ids[%d]", i)
		kind, ok := ParseReferenceKind(item.Type)
		if !ok {
			return nil, NewFieldError(field, fmt.Sprintf("Unknown type %q; expected one of e, i, r.", item.Type))
		}
		if item.ID == nil {
			return nil, NewFieldError(field, "Missing id.")
		}
		if *item.ID <= 0 {
			return nil, NewFieldError(field, "Id must be a positive integer.")
		}
		refs = append(refs, Reference{Kind: kind, ID: *item.ID})
	}
	return refs, nil
}

// NewPaymentBatch partitions refs into concrete expense ids and rule ids,
// dropping repeats. Rule references need both month and year; without rule
// references month and year are ignored. Nothing is mutated by callers when
// this fails.
func NewPaymentBatch(refs []Reference, month, year *int) (PaymentBatch, error) {
	var b PaymentBatch
	seen := make(map[Reference]struct{}, len(refs))
	for _, ref := range refs {
		key := ref
		if key.Kind == InstallmentLine {
			key.Kind = ConcreteExpense
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		switch key.Kind {
		case ConcreteExpense:
			b.Concrete = append(b.Concrete, ref.ID)
		case RecurringOccurrence:
			b.Rules = append(b.Rules, ref.ID)
		default:
			return PaymentBatch{}, NewFieldError("ids", fmt.Sprintf("Unknown type %q.", ref.Kind))
		}
	}
	if len(b.Rules) == 0 {
		return b, nil
	}

	v := &ValidationError{}
	if month == nil {
		v.Add("month", "Month is required for recurring expenses.")
	}
	if year == nil {
		v.Add("year", "Year is required for recurring expenses.")
	}
	if err := v.Err(); err != nil {
		return PaymentBatch{}, err
	}
	p, err := ValidateMonthYear(*year, *month)
	if err != nil {
		return PaymentBatch{}, err
	}
	b.Period = &p
	return b, nil
}

// Empty reports whether the batch addresses nothing.
func (b PaymentBatch) Empty() bool {
	return len(b.Concrete) == 0 && len(b.Rules) == 0
}
