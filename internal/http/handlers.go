package http

import (
	"fmt"
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/notify"
)

type selectRequest struct {
	Create bool `json:"create"`
}

type budgetRequest struct {
	Amount string `json:"amount"`
}

type chargeRequest struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// itemRequest carries amounts as strings so "12,50" is accepted like the console form.
type itemRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Amount      string            `json:"amount"`
	Category    string            `json:"category"`
	Attachments []core.Attachment `json:"attachments,omitempty"`
	Charges     []chargeRequest   `json:"charges,omitempty"`
}

func (req itemRequest) fields() (core.ItemFields, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.ItemFields{}, err
	}
	f := core.ItemFields{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Amount:      amount,
		Category:    strings.TrimSpace(req.Category),
		Attachments: req.Attachments,
	}
	for _, c := range req.Charges {
		ca, err := core.ParseAmount(c.Amount)
		if err != nil {
			return core.ItemFields{}, fmt.Errorf("charge %q: %w", c.Label, err)
		}
		f.Charges = append(f.Charges, core.Charge{Label: strings.TrimSpace(c.Label), Amount: ca})
	}
	return f, f.Validate()
}

type yearsResponse struct {
	Years    []core.FiscalYear `json:"years"`
	Selected core.FiscalYear   `json:"selected,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListYears(w http.ResponseWriter, r *http.Request) {
	years := s.ledger.ListYears(r.Context())
	if years == nil {
		years = []core.FiscalYear{}
	}
	selected, _ := s.ledger.Selected()
	writeJSON(w, http.StatusOK, yearsResponse{Years: years, Selected: selected})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	selected, ok := s.ledger.Selected()
	writeJSON(w, http.StatusOK, map[string]any{
		"selected": selected,
		"loaded":   ok,
		"requests": s.Metrics(),
	})
}

func (s *Server) handleSelectYear(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		s.writeError(w, r, "select_year", err)
		return
	}
	var req selectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	snap, err := s.ledger.SelectYear(r.Context(), year, req.Create)
	if err != nil {
		s.writeError(w, r, "select_year", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		s.writeError(w, r, "fetch_budget", err)
		return
	}
	b, err := s.ledger.Budget(r.Context(), year)
	if err != nil {
		s.writeError(w, r, "fetch_budget", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		s.writeError(w, r, "update_budget", err)
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, "update_budget", err)
		return
	}
	agg, err := s.ledger.UpdateBudget(r.Context(), year, amount)
	if err != nil {
		s.writeError(w, r, "update_budget", err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		s.writeError(w, r, "list_months", err)
		return
	}
	months, err := s.ledger.Months(year)
	if err != nil {
		s.writeError(w, r, "list_months", err)
		return
	}
	writeJSON(w, http.StatusOK, months)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	year, err := pathYear(r)
	if err != nil {
		s.writeError(w, r, "aggregate", err)
		return
	}
	agg, err := s.ledger.Aggregate(r.Context(), year)
	if err != nil {
		s.writeError(w, r, "aggregate", err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// yearMonth parses the {year}/{month} pair shared by the item routes.
func (s *Server) yearMonth(w http.ResponseWriter, r *http.Request, op string) (core.FiscalYear, core.MonthIndex, bool) {
	year, err := pathYear(r)
	if err != nil {
		s.writeError(w, r, op, err)
		return 0, 0, false
	}
	m, err := pathMonth(r)
	if err != nil {
		s.writeError(w, r, op, err)
		return 0, 0, false
	}
	return year, m, true
}

func (s *Server) itemFields(w http.ResponseWriter, r *http.Request, op string) (core.ItemFields, bool) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return core.ItemFields{}, false
	}
	f, err := req.fields()
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return core.ItemFields{}, false
	}
	return f, true
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	year, m, ok := s.yearMonth(w, r, "add_item")
	if !ok {
		return
	}
	f, ok := s.itemFields(w, r, "add_item")
	if !ok {
		return
	}
	item, err := s.ledger.AddItem(r.Context(), year, m, f)
	if err != nil {
		s.writeError(w, r, "add_item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	year, m, ok := s.yearMonth(w, r, "edit_item")
	if !ok {
		return
	}
	f, ok := s.itemFields(w, r, "edit_item")
	if !ok {
		return
	}
	item, err := s.ledger.EditItem(r.Context(), year, m, r.PathValue("id"), f)
	if err != nil {
		s.writeError(w, r, "edit_item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	year, m, ok := s.yearMonth(w, r, "remove_item")
	if !ok {
		return
	}
	if err := s.ledger.RemoveItem(r.Context(), year, m, r.PathValue("id")); err != nil {
		s.writeError(w, r, "remove_item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	year, m, ok := s.yearMonth(w, r, "save_batch")
	if !ok {
		return
	}
	res, err := s.ledger.SaveNewItems(r.Context(), year, m)
	if err != nil {
		s.writeError(w, r, "save_batch", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	out := []notify.Notification{}
	if s.recent != nil {
		out = append(out, s.recent.All()...)
	}
	writeJSON(w, http.StatusOK, out)
}
