package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/settle"
)

type tripDTO struct {
	ID             int64     `json:"id"`
	ChatID         string    `json:"chat_id"`
	Name           string    `json:"name"`
	Location       string    `json:"location"`
	Participants   []string  `json:"participants"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type expenseDTO struct {
	ID           int64             `json:"id"`
	Description  string            `json:"description"`
	Total        string            `json:"total"`
	Category     string            `json:"category"`
	Date         string            `json:"date"`
	Finalized    bool              `json:"finalized"`
	Payer        string            `json:"payer,omitempty"`
	Participants []string          `json:"participants,omitempty"`
	Policy       string            `json:"policy,omitempty"`
	Shares       map[string]string `json:"shares,omitempty"`
}

type instructionDTO struct {
	Debtor   string `json:"debtor"`
	Creditor string `json:"creditor"`
	Amount   string `json:"amount"`
}

func tripToDTO(t ledger.Trip) tripDTO {
	return tripDTO{
		ID:             t.ID,
		ChatID:         t.ChatID,
		Name:           t.Name,
		Location:       t.Location,
		Participants:   t.Participants,
		Status:         t.Status,
		CreatedAt:      t.CreatedAt,
		LastActivityAt: t.LastActivityAt,
	}
}

func expenseToDTO(t ledger.Transaction) expenseDTO {
	dto := expenseDTO{
		ID:          t.ID,
		Description: t.Description,
		Total:       t.Total.StringFixed(2),
		Category:    t.Category,
		Date:        t.Date.Format("2006-01-02"),
	}
	if sp, ok := t.Split(); ok {
		dto.Finalized = true
		dto.Payer = sp.Payer
		dto.Participants = sp.Participants
		dto.Policy = string(sp.Policy)
		dto.Shares = make(map[string]string, len(sp.Amounts))
		for name, amt := range sp.Amounts {
			dto.Shares[name] = amt.StringFixed(2)
		}
	}
	return dto
}

func moneyMap(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v.StringFixed(2)
	}
	return out
}

func tripIDVar(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// loadTrip resolves the {id} route variable, writing the error response
// itself when the trip cannot be served.
func (a *API) loadTrip(w http.ResponseWriter, r *http.Request) (*ledger.Trip, bool) {
	id, err := tripIDVar(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trip id")
		return nil, false
	}
	trip, err := a.ledger.TripByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrTripNotFound) {
			respondError(w, http.StatusNotFound, "trip not found")
		} else {
			respondError(w, http.StatusInternalServerError, "failed to load trip")
		}
		return nil, false
	}
	return trip, true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := a.ledger.AllTrips(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list trips")
		return
	}

	out := make([]tripDTO, 0, len(trips))
	for _, t := range trips {
		out = append(out, tripToDTO(t))
	}
	respondJSON(w, http.StatusOK, out)
}

func (a *API) handleTripExpenses(w http.ResponseWriter, r *http.Request) {
	trip, ok := a.loadTrip(w, r)
	if !ok {
		return
	}

	txns, err := a.ledger.TripTransactions(r.Context(), trip.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load expenses")
		return
	}

	out := make([]expenseDTO, 0, len(txns))
	for _, t := range txns {
		out = append(out, expenseToDTO(t))
	}
	respondJSON(w, http.StatusOK, out)
}

func (a *API) handleTripSettlement(w http.ResponseWriter, r *http.Request) {
	trip, ok := a.loadTrip(w, r)
	if !ok {
		return
	}

	txns, err := a.ledger.TripTransactions(r.Context(), trip.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load expenses")
		return
	}

	resp := struct {
		Status       string           `json:"status"`
		Instructions []instructionDTO `json:"instructions"`
	}{Instructions: []instructionDTO{}}

	instructions, err := settle.RunningBalance(txns)
	switch {
	case err == nil:
		resp.Status = "ok"
		for _, ins := range instructions {
			resp.Instructions = append(resp.Instructions, instructionDTO{
				Debtor:   ins.Debtor,
				Creditor: ins.Creditor,
				Amount:   ins.Amount.StringFixed(2),
			})
		}
	case errors.Is(err, settle.ErrNoExpenses):
		resp.Status = "no_expenses"
	case errors.Is(err, settle.ErrAllSettled):
		resp.Status = "settled"
	default:
		respondError(w, http.StatusInternalServerError, "failed to compute settlement")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (a *API) handleTripSummary(w http.ResponseWriter, r *http.Request) {
	trip, ok := a.loadTrip(w, r)
	if !ok {
		return
	}

	sum, err := a.ledger.TripSummary(r.Context(), trip.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	respondJSON(w, http.StatusOK, struct {
		TotalSpent string            `json:"total_spent"`
		Count      int               `json:"count"`
		ByCategory map[string]string `json:"by_category"`
		ByPayer    map[string]string `json:"by_payer"`
	}{
		TotalSpent: sum.TotalSpent.StringFixed(2),
		Count:      sum.Count,
		ByCategory: moneyMap(sum.ByCategory),
		ByPayer:    moneyMap(sum.ByPayer),
	})
}
