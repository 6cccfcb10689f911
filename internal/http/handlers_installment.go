package http

import (
	"net/http"

	applog "fintrack/internal/log"
)

func (s *Server) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	origins, err := s.svc.Installments.List(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]installmentView, 0, len(origins))
	for _, o := range origins {
		out = append(out, newInstallmentView(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExpandInstallment(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	var form installmentForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	params, err := form.params()
	if err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.svc.Installments.Expand(r.Context(), userID, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogInstallmentExpanded(r.Context(),
		userID, plan.Origin.ID, len(plan.Lines), plan.Drift().String())
	writeJSON(w, http.StatusCreated, newPlanView(plan))
}

func (s *Server) handleGetInstallment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.svc.Installments.Get(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanView(plan))
}

func (s *Server) handleDeleteInstallment(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Installments.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}
