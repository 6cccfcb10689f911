// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the views that shape domain values on the wire.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error  string            `json:"error,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// ErrorResponse creates a response carrying a single message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// ValidationErrorResponse creates a 400 response with field keyed messages.
func ValidationErrorResponse(fields map[string]string) *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusBadRequest).Body(errorBody{Errors: fields})
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "Not found.")
}

// UnauthorizedError creates a 401 response.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Internal server error.")
}

// responseForError maps domain errors onto status codes. Field errors win
// over their cause so a missing referenced category stays a 400.
func responseForError(err error) *JSONResponseBuilder {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return ValidationErrorResponse(verr.Fields)
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError()
	case errors.Is(err, core.ErrConflict):
		return ErrorResponse(http.StatusConflict, "A resource with these values already exists.")
	case errors.Is(err, core.ErrInvalidInput):
		return ErrorResponse(http.StatusBadRequest, err.Error())
	default:
		return InternalServerError()
	}
}

// writeError logs unexpected failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := responseForError(err)
	if resp.statusCode >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldUserID, userIDFrom(r.Context()),
			applog.FieldError, err)
	}
	resp.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

type (
	referenceView struct {
		Type string `json:"type"`
		ID   int64  `json:"id"`
	}

	occurrenceView struct {
		ID                int64         `json:"id"`
		LegacyID          int64         `json:"legacy_id"`
		Key               string        `json:"key"`
		Name              string        `json:"name"`
		Amount            core.Money    `json:"amount"`
		DueDate           core.Date     `json:"due_date"`
		Paid              bool          `json:"paid"`
		CategoryID        *int64        `json:"category_id"`
		InstallmentOrigin *int64        `json:"installment_origin"`
		IsRecurring       bool          `json:"is_recurring"`
		IsInstallment     bool          `json:"is_installment"`
		Ref               referenceView `json:"ref"`
	}

	expenseView struct {
		ID                int64      `json:"id"`
		Name              string     `json:"name"`
		Amount            core.Money `json:"amount"`
		DueDate           core.Date  `json:"due_date"`
		Paid              bool       `json:"paid"`
		CategoryID        *int64     `json:"category_id"`
		InstallmentOrigin *int64     `json:"installment_origin"`
	}

	categoryView struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	ruleView struct {
		ID         int64      `json:"id"`
		Name       string     `json:"name"`
		Amount     core.Money `json:"amount"`
		DueDay     int        `json:"due_day"`
		CategoryID int64      `json:"category_id"`
		StartDate  core.Date  `json:"start_date"`
		EndDate    core.Date  `json:"end_date"`
		Active     bool       `json:"active"`
	}

	installmentView struct {
		ID           int64      `json:"id"`
		Name         string     `json:"name"`
		TotalAmount  core.Money `json:"total_amount"`
		Quantity     int        `json:"installments_quantity"`
		FirstDueDate core.Date  `json:"first_due_date"`
		CategoryID   int64      `json:"category_id"`
	}

	planView struct {
		installmentView
		Drift    core.Money    `json:"drift"`
		Expenses []expenseView `json:"expenses"`
	}

	categoryAmountView struct {
		CategoryID *int64     `json:"category_id"`
		Amount     core.Money `json:"amount"`
	}

	summaryView struct {
		Year        int                  `json:"year"`
		Month       int                  `json:"month"`
		Count       int                  `json:"count"`
		Total       core.Money           `json:"total"`
		Paid        core.Money           `json:"paid"`
		Outstanding core.Money           `json:"outstanding"`
		ByCategory  []categoryAmountView `json:"by_category"`
	}
)

func newOccurrenceViews(occurrences []core.Occurrence) []occurrenceView {
	out := make([]occurrenceView, 0, len(occurrences))
	for _, o := range occurrences {
		ref := o.Reference()
		out = append(out, occurrenceView{
			ID:                o.ID,
			LegacyID:          o.LegacyID(),
			Key:               o.Key(),
			Name:              o.Name,
			Amount:            o.Amount,
			DueDate:           o.DueDate,
			Paid:              o.Paid,
			CategoryID:        o.CategoryID,
			InstallmentOrigin: o.InstallmentOriginID,
			IsRecurring:       o.IsRecurring(),
			IsInstallment:     o.IsInstallment(),
			Ref:               referenceView{Type: string(ref.Kind), ID: ref.ID},
		})
	}
	return out
}

func newExpenseView(e core.Expense) expenseView {
	return expenseView{
		ID:                e.ID,
		Name:              e.Name,
		Amount:            e.Amount,
		DueDate:           e.DueDate,
		Paid:              e.Paid,
		CategoryID:        e.CategoryID,
		InstallmentOrigin: e.InstallmentOriginID,
	}
}

func newCategoryViews(categories []core.Category) []categoryView {
	out := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryView{ID: c.ID, Name: c.Name})
	}
	return out
}

func newRuleView(r core.RecurringExpense) ruleView {
	return ruleView{
		ID:         r.ID,
		Name:       r.Name,
		Amount:     r.Amount,
		DueDay:     r.DueDay,
		CategoryID: r.CategoryID,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		Active:     r.Active,
	}
}

func newRuleViews(rules []core.RecurringExpense) []ruleView {
	out := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		out = append(out, newRuleView(r))
	}
	return out
}

func newInstallmentView(i core.InstallmentExpense) installmentView {
	return installmentView{
		ID:           i.ID,
		Name:         i.Name,
		TotalAmount:  i.TotalAmount,
		Quantity:     i.Quantity,
		FirstDueDate: i.FirstDueDate,
		CategoryID:   i.CategoryID,
	}
}

func newPlanView(p services.InstallmentPlan) planView {
	lines := make([]expenseView, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, newExpenseView(l))
	}
	return planView{
		installmentView: newInstallmentView(p.Origin),
		Drift:           p.Drift(),
		Expenses:        lines,
	}
}

func newSummaryView(s core.MonthSummary) summaryView {
	byCategory := make([]categoryAmountView, 0, len(s.ByCategory))
	for _, c := range s.ByCategory {
		byCategory = append(byCategory, categoryAmountView{CategoryID: c.CategoryID, Amount: c.Amount})
	}
	return summaryView{
		Year:        s.Period.Year,
		Month:       s.Period.Month,
		Count:       s.Count,
		Total:       s.Total,
		Paid:        s.Paid,
		Outstanding: s.Outstanding,
		ByCategory:  byCategory,
	}
}
