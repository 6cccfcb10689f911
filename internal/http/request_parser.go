// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data.
// Request bodies decode into loose forms first so that malformed amounts and
// dates come back as field errors, like any other validation failure.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// UserIDHeader identifies the acting user. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type contextKey string

const userIDKey contextKey = "user_id"

var errMissingUser = errors.New("missing or invalid " + UserIDHeader + " header")

// parseUserID reads a positive user id from the request header.
func parseUserID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errMissingUser
	}
	return id, nil
}

func withUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// userIDFrom returns the user placed in the context by requireUser.
func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// pathID parses the {id} route parameter. Ids that cannot exist are reported
// as not found.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrNotFound
	}
	return id, nil
}

// ParseMonthParams extracts the required year and month query parameters.
func ParseMonthParams(r *http.Request) (core.Period, error) {
	q := r.URL.Query()
	return core.ParsePeriod(q.Get("year"), q.Get("month"))
}

// decodeJSON strictly decodes a single JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.NewFieldError("body", "Request body is required.")
		}
		return core.NewFieldError("body", "Invalid JSON: "+err.Error())
	}
	if dec.More() {
		return core.NewFieldError("body", "Request body must contain a single JSON object.")
	}
	return nil
}

// flexString accepts a JSON string or number and keeps its text.
type flexString struct {
	set   bool
	value string
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*f = flexString{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	*f = flexString{set: true, value: strings.TrimSpace(s)}
	return nil
}

func parseAmountField(v *core.ValidationError, field string, f flexString) core.Money {
	if !f.set || f.value == "" {
		v.Add(field, "This field is required.")
		return core.Money{}
	}
	m, err := core.ParseMoney(f.value)
	if err != nil {
		v.Add(field, "A valid number is required.")
		return core.Money{}
	}
	return m
}

func parseDateField(v *core.ValidationError, field, raw string, required bool) core.Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			v.Add(field, "This field is required.")
		}
		return core.Date{}
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		v.Add(field, "Date has wrong format. Use YYYY-MM-DD.")
		return core.Date{}
	}
	return d
}

// merge folds domain validation into the parse errors collected so far.
// Parse messages win for fields that failed both.
func merge(v *core.ValidationError, err error) error {
	var domain *core.ValidationError
	if errors.As(err, &domain) {
		for field, msg := range domain.Fields {
			v.Add(field, msg)
		}
	}
	return v.Err()
}

type categoryForm struct {
	Name string `json:"name"`
}

type expenseForm struct {
	Name       string     `json:"name"`
	Amount     flexString `json:"amount"`
	DueDate    string     `json:"due_date"`
	CategoryID *int64     `json:"category_id"`
	Paid       *bool      `json:"paid"`
}

func (f expenseForm) expense(userID int64) (core.Expense, error) {
	v := &core.ValidationError{}
	e := core.Expense{
		UserID:     userID,
		Name:       strings.TrimSpace(sanitizeInput(f.Name)),
		Amount:     parseAmountField(v, "amount", f.Amount),
		DueDate:    parseDateField(v, "due_date", f.DueDate, true),
		CategoryID: f.CategoryID,
		Paid:       f.Paid != nil && *f.Paid,
	}
	if err := merge(v, e.Validate()); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

type ruleForm struct {
	Name       string     `json:"name"`
	Amount     flexString `json:"amount"`
	DueDay     int        `json:"due_day"`
	CategoryID int64      `json:"category_id"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
	Active     *bool      `json:"active"`
}

func (f ruleForm) rule(userID int64) (core.RecurringExpense, error) {
	v := &core.ValidationError{}
	r := core.RecurringExpense{
		UserID:     userID,
		Name:       strings.TrimSpace(sanitizeInput(f.Name)),
		Amount:     parseAmountField(v, "amount", f.Amount),
		DueDay:     f.DueDay,
		CategoryID: f.CategoryID,
		StartDate:  parseDateField(v, "start_date", f.StartDate, true),
		EndDate:    parseDateField(v, "end_date", f.EndDate, false),
		Active:     f.Active == nil || *f.Active,
	}
	if err := merge(v, r.Validate()); err != nil {
		return core.RecurringExpense{}, err
	}
	return r, nil
}

type installmentForm struct {
	Name         string     `json:"name"`
	TotalAmount  flexString `json:"total_amount"`
	Quantity     int        `json:"installments_quantity"`
	FirstDueDate string     `json:"first_due_date"`
	CategoryID   int64      `json:"category_id"`
}

func (f installmentForm) params() (services.InstallmentParams, error) {
	v := &core.ValidationError{}
	p := services.InstallmentParams{
		Name:         strings.TrimSpace(sanitizeInput(f.Name)),
		TotalAmount:  parseAmountField(v, "total_amount", f.TotalAmount),
		Quantity:     f.Quantity,
		FirstDueDate: parseDateField(v, "first_due_date", f.FirstDueDate, true),
		CategoryID:   f.CategoryID,
	}
	origin := core.InstallmentExpense{
		Name:         p.Name,
		TotalAmount:  p.TotalAmount,
		Quantity:     p.Quantity,
		FirstDueDate: p.FirstDueDate,
		CategoryID:   p.CategoryID,
	}
	if err := merge(v, origin.Validate()); err != nil {
		return services.InstallmentParams{}, err
	}
	return p, nil
}

type paymentForm struct {
	IDs   []core.RawReference `json:"ids"`
	Month *int                `json:"month"`
	Year  *int                `json:"year"`
}

// sanitizeInput removes control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
