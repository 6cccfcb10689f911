package http

import (
	"net/http"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.Catalog.ListCategories(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryViews(categories))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var form categoryForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Catalog.CreateCategory(r.Context(), userIDFrom(r.Context()), sanitizeInput(form.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryView{ID: c.ID, Name: c.Name})
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var form categoryForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Catalog.RenameCategory(r.Context(), userIDFrom(r.Context()), id, sanitizeInput(form.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryView{ID: c.ID, Name: c.Name})
}

// handleDeleteCategory cascades to rules, plans and their expenses, so every
// cached month of the user is dropped.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Catalog.DeleteCategory(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Catalog.ListRules(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRuleViews(rules))
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	var form ruleForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := form.rule(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.svc.Catalog.CreateRule(r.Context(), userID, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusCreated, newRuleView(created))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := s.svc.Catalog.GetRule(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRuleView(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var form ruleForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := form.rule(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule.ID = id
	updated, err := s.svc.Catalog.UpdateRule(r.Context(), userID, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusOK, newRuleView(updated))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Catalog.DeleteRule(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRuleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFrom(r.Context())
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rule, err := s.svc.Catalog.SetRuleActive(r.Context(), userID, id, active)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.invalidate(userID)
		writeJSON(w, http.StatusOK, newRuleView(rule))
	}
}
