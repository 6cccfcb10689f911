// Package core holds the domain model of the tracker: expenses, recurring
// rules, payment markers, installment plans and the projected occurrences
// built from them.
//
// Money is kept as integer cents. Decimal arithmetic, parsing and formatting
// go through shopspring/decimal so that no value ever passes through float64.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest storable amount (ten digits, two of them decimal).
var MaxAmount = Money{Cents: 9_999_999_999}

var hundred = decimal.NewFromInt(100)

// Exponent bounds accepted by MoneyFromDecimal. Anything outside cannot be
// a storable amount, and rescaling it would allocate without bound.
const (
	minExponent = -10
	maxExponent = 10
)

// ParseMoney converts a decimal string to Money with half-up rounding on the
// third decimal place. Both dot and comma separators are accepted.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 cents
//	ParseMoney("12,34")  -> 1234 cents
//	ParseMoney("12.345") -> 1235 cents
//	ParseMoney("12.344") -> 1234 cents
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to cents. Values outside the storable range fail.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return Money{}, fmt.Errorf("%w: exponent %d out of range", ErrInvalidAmount, exp)
	}
	cents := d.Mul(hundred).Round(0)
	if cents.Abs().GreaterThan(decimal.NewFromInt(MaxAmount.Cents)) {
		return Money{}, fmt.Errorf("%w: %s exceeds maximum", ErrInvalidAmount, d.String())
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with exactly two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// MarshalJSON encodes the amount as a decimal string, e.g. "12.30".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// InstallmentAmount is total divided by quantity, rounded half-up to cents.
// Every installment carries this same amount, so the installments may not
// add back up to the total exactly.
func InstallmentAmount(total Money, quantity int) Money {
	if quantity < 1 {
		return Money{}
	}
	per := total.Decimal().DivRound(decimal.NewFromInt(int64(quantity)), 2)
	return Money{Cents: per.Mul(hundred).IntPart()}
}
