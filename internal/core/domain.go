package core

import (
	"fmt"
	"strings"
	"time"
)

// MaxNameLength bounds every user supplied name.
const MaxNameLength = 255

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	// Expense is a concrete, persisted obligation. Rows generated by an
	// installment plan carry InstallmentOriginID.
	Expense struct {
		ID                  int64
		UserID              int64
		Name                string
		Amount              Money
		DueDate             Date
		CategoryID          *int64
		Paid                bool
		InstallmentOriginID *int64
	}

	// RecurringExpense is a monthly rule. It is never itself an obligation;
	// the projection turns it into one virtual occurrence per month it covers.
	RecurringExpense struct {
		ID         int64
		UserID     int64
		Name       string
		Amount     Money
		DueDay     int
		CategoryID int64
		StartDate  Date
		EndDate    Date // zero means open-ended
		Active     bool
	}

	// PaidRecurringExpense marks one rule as paid for one month.
	PaidRecurringExpense struct {
		ID                 int64
		UserID             int64
		RecurringExpenseID int64
		Day                int
		Month              int
		Year               int
	}

	InstallmentExpense struct {
		ID           int64
		UserID       int64
		Name         string
		TotalAmount  Money
		Quantity     int
		FirstDueDate Date
		CategoryID   int64
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// Period returns the year and month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmount.Cents {
		return ErrInvalidAmount
	}
	return nil
}

const amountMessage = "Amount must be greater than zero and at most 99999999.99."

func validateName(v *ValidationError, field, name string) {
	switch {
	case strings.TrimSpace(name) == "":
		v.Add(field, "This field may not be blank.")
	case len(name) > MaxNameLength:
		v.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", MaxNameLength))
	}
}

func (c Category) Validate() error {
	v := &ValidationError{}
	validateName(v, "name", c.Name)
	return v.Err()
}

func (e Expense) Validate() error {
	v := &ValidationError{}
	validateName(v, "name", e.Name)
	if err := e.Amount.Validate(); err != nil {
		v.Add("amount", amountMessage)
	}
	if e.DueDate.IsZero() {
		v.Add("due_date", "This field is required.")
	}
	return v.Err()
}

func (r RecurringExpense) Validate() error {
	v := &ValidationError{}
	validateName(v, "name", r.Name)
	if err := r.Amount.Validate(); err != nil {
		v.Add("amount", amountMessage)
	}
	if r.DueDay < 1 || r.DueDay > 31 {
		v.Add("due_day", "Due day must be between 1 and 31.")
	}
	if r.CategoryID <= 0 {
		v.Add("category_id", "This field is required.")
	}
	if r.StartDate.IsZero() {
		v.Add("start_date", "This field is required.")
	}
	if !r.EndDate.IsZero() && !r.StartDate.IsZero() && r.EndDate.Before(r.StartDate.Time) {
		v.Add("end_date", "End date must not be before start date.")
	}
	return v.Err()
}

// Covers reports whether the rule is in effect at some point of the period:
// it starts no later than the last day and does not end before the first day.
func (r RecurringExpense) Covers(p Period) bool {
	if r.StartDate.After(p.LastDay().Time) {
		return false
	}
	return r.EndDate.IsZero() || !r.EndDate.Before(p.FirstDay().Time)
}

func (i InstallmentExpense) Validate() error {
	v := &ValidationError{}
	validateName(v, "name", i.Name)
	if err := i.TotalAmount.Validate(); err != nil {
		v.Add("total_amount", amountMessage)
	}
	if i.Quantity < 1 {
		v.Add("installments_quantity", "Ensure this value is greater than or equal to 1.")
	} else if i.TotalAmount.Cents > 0 && InstallmentAmount(i.TotalAmount, i.Quantity).Cents <= 0 {
		v.Add("total_amount", "Total amount is too small for the number of installments.")
	}
	if i.FirstDueDate.IsZero() {
		v.Add("first_due_date", "This field is required.")
	}
	if i.CategoryID <= 0 {
		v.Add("category_id", "This field is required.")
	}
	return v.Err()
}
