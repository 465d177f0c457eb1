package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorestars/internal/auth"
	"github.com/dukerupert/chorestars/internal/ledger"
	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
)

const defaultHistoryLimit = 50

type StarsHandler struct {
	ledger      *ledger.Service
	memberStore *store.MemberStore
	logger      *slog.Logger
}

func NewStarsHandler(l *ledger.Service, ms *store.MemberStore, logger *slog.Logger) *StarsHandler {
	return &StarsHandler{ledger: l, memberStore: ms, logger: logger}
}

type adjustRequest struct {
	MemberID int64  `json:"member_id"`
	Amount   int    `json:"amount"`
	Reason   string `json:"reason"`
}

// Credit handles POST /api/stars/credit
func (h *StarsHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e, err := h.ledger.Credit(r.Context(), auth.MemberID(r.Context()), req.MemberID, req.Amount, req.Reason, nil)
	if err != nil {
		writeError(w, h.logger, "credit stars", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// Debit handles POST /api/stars/debit
func (h *StarsHandler) Debit(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e, err := h.ledger.Debit(r.Context(), auth.MemberID(r.Context()), req.MemberID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, h.logger, "debit stars", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type memberStarsResponse struct {
	MemberID int64                    `json:"member_id"`
	Total    int                      `json:"total"`
	History  []model.StarsLedgerEntry `json:"history"`
}

// MemberStars handles GET /api/members/{id}/stars?limit=
func (h *StarsHandler) MemberStars(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	m, err := h.memberStore.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "get member", err)
		return
	}
	if m == nil || m.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	total, err := h.ledger.TotalFor(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "total stars", err)
		return
	}
	history, err := h.ledger.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, h.logger, "star history", err)
		return
	}

	writeJSON(w, http.StatusOK, memberStarsResponse{MemberID: id, Total: total, History: emptyIfNil(history)})
}

// Leaderboard handles GET /api/leaderboard
func (h *StarsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.Balances(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(balances))
}
