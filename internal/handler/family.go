package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorestars/internal/auth"
	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/taskflow"
)

type FamilyHandler struct {
	engine *taskflow.Engine
	logger *slog.Logger
}

func NewFamilyHandler(engine *taskflow.Engine, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{engine: engine, logger: logger}
}

type createFamilyRequest struct {
	Name         string `json:"name"`
	GuardianName string `json:"guardian_name"`
}

type createFamilyResponse struct {
	Family   *model.Family `json:"family"`
	Guardian *model.Member `json:"guardian"`
}

// Create handles POST /api/families. It is the only unauthenticated write:
// it bootstraps a family and its first guardian.
func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	family, guardian, err := h.engine.CreateFamily(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.GuardianName))
	if err != nil {
		writeError(w, h.logger, "create family", err)
		return
	}

	writeJSON(w, http.StatusCreated, createFamilyResponse{Family: family, Guardian: guardian})
}

// ListMembers handles GET /api/members
func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.engine.ListMembers(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list members", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(members))
}

type addMemberRequest struct {
	Name string     `json:"name"`
	Role model.Role `json:"role"`
}

// AddMember handles POST /api/members
func (h *FamilyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = model.RoleParticipant
	}

	m, err := h.engine.AddMember(r.Context(), auth.MemberID(r.Context()), strings.TrimSpace(req.Name), req.Role)
	if err != nil {
		writeError(w, h.logger, "add member", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// RemoveMember handles DELETE /api/members/{id}
func (h *FamilyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.engine.RemoveMember(r.Context(), auth.MemberID(r.Context()), id); err != nil {
		writeError(w, h.logger, "remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

// SetPIN handles POST /api/members/{id}/pin
func (h *FamilyHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req setPINRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.engine.SetPIN(r.Context(), auth.MemberID(r.Context()), id, req.PIN); err != nil {
		writeError(w, h.logger, "set pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}
