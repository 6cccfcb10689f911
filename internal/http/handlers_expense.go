package http

import (
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

type periodView struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type reconcileView struct {
	Status          string `json:"status"`
	ExpensesUpdated int    `json:"expenses_updated"`
	MarkersChanged  int    `json:"markers_changed"`
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	occurrences, err := s.projections.Project(r.Context(), userIDFrom(r.Context()), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOccurrenceViews(occurrences))
}

func (s *Server) handleAvailableMonths(w http.ResponseWriter, r *http.Request) {
	periods, err := s.svc.Projection.AvailableMonths(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]periodView, 0, len(periods))
	for _, p := range periods {
		out = append(out, periodView{Year: p.Year, Month: p.Month})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	occurrences, err := s.projections.Project(r.Context(), userIDFrom(r.Context()), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryView(core.Summarize(p, occurrences)))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	var form expenseForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := form.expense(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.svc.Catalog.CreateExpense(r.Context(), userID, e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusCreated, newExpenseView(created))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.svc.Catalog.GetExpense(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseView(e))
}

// handleUpdateExpense replaces an expense. An omitted paid flag keeps the
// stored one.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var form expenseForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := form.expense(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.ID = id
	if form.Paid == nil {
		existing, err := s.svc.Catalog.GetExpense(r.Context(), userID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		e.Paid = existing.Paid
	}
	updated, err := s.svc.Catalog.UpdateExpense(r.Context(), userID, e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusOK, newExpenseView(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Catalog.DeleteExpense(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

// handleReconcile marks or unmarks a batch of occurrences as paid.
func (s *Server) handleReconcile(action core.Action) http.HandlerFunc {
	status := "marked"
	if action == core.ActionUnmark {
		status = "unmarked"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFrom(r.Context())
		var form paymentForm
		if err := decodeJSON(r, &form); err != nil {
			writeError(w, r, err)
			return
		}
		result, err := s.svc.Payments.Reconcile(r.Context(), userID, action, form.IDs, form.Month, form.Year)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.invalidate(userID)
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogPaymentsReconciled(r.Context(),
			userID, string(action), int64(result.ExpensesUpdated), int64(result.MarkersChanged))
		writeJSON(w, http.StatusOK, reconcileView{
			Status:          status,
			ExpensesUpdated: result.ExpensesUpdated,
			MarkersChanged:  result.MarkersChanged,
		})
	}
}
