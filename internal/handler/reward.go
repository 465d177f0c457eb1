package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorestars/internal/auth"
	"github.com/dukerupert/chorestars/internal/reward"
)

type RewardHandler struct {
	service *reward.Service
	logger  *slog.Logger
}

func NewRewardHandler(svc *reward.Service, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{service: svc, logger: logger}
}

// List handles GET /api/rewards?redeemed=true
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	includeRedeemed := r.URL.Query().Get("redeemed") == "true"

	rewards, err := h.service.List(r.Context(), auth.FamilyID(r.Context()), includeRedeemed)
	if err != nil {
		writeError(w, h.logger, "list rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(rewards))
}

type rewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
}

// Create handles POST /api/rewards
func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rw, err := h.service.Create(r.Context(), auth.MemberID(r.Context()), req.Title, req.Description, req.Cost)
	if err != nil {
		writeError(w, h.logger, "create reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, rw)
}

// Redeem handles POST /api/rewards/{id}/redeem. The caller spends their
// own stars.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	rw, err := h.service.Redeem(r.Context(), id, auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "redeem reward", err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}
