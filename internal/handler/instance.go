package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/chorestars/internal/auth"
	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/taskflow"
)

type InstanceHandler struct {
	engine *taskflow.Engine
	logger *slog.Logger
}

func NewInstanceHandler(engine *taskflow.Engine, logger *slog.Logger) *InstanceHandler {
	return &InstanceHandler{engine: engine, logger: logger}
}

// List handles GET /api/instances?assignee=&status=&from=&to=
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.InstanceFilter{FamilyID: auth.FamilyID(r.Context())}

	if s := q.Get("assignee"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assignee"})
			return
		}
		f.AssigneeID = id
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			status := model.InstanceStatus(strings.TrimSpace(part))
			if !status.Valid() {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status " + strconv.Quote(part)})
				return
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.DueFrom}, {"to", &f.DueTo}} {
		s := q.Get(p.name)
		if s == "" {
			continue
		}
		t, err := parseFlexibleTime(s, h.engine.Location())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": p.name + " must be RFC3339 or YYYY-MM-DD format"})
			return
		}
		*p.dst = &t
	}

	views, err := h.engine.ListInstances(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, "list instances", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(views))
}

// Get handles GET /api/instances/{id}
func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	view, err := h.familyInstance(r, id)
	if err != nil {
		writeError(w, h.logger, "get instance", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// familyInstance hides instances of other families behind ErrNotFound.
func (h *InstanceHandler) familyInstance(r *http.Request, id int64) (*model.InstanceView, error) {
	view, err := h.engine.GetInstance(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if view.FamilyID != auth.FamilyID(r.Context()) {
		return nil, model.ErrNotFound
	}
	return view, nil
}

type assignRequest struct {
	TemplateID int64     `json:"template_id"`
	AssigneeID int64     `json:"assignee_id"`
	DueAt      time.Time `json:"due_at"`
}

// Assign handles POST /api/instances
func (h *InstanceHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DueAt.IsZero() {
		req.DueAt = h.engine.Now()
	}

	inst, err := h.engine.Assign(r.Context(), auth.MemberID(r.Context()), req.TemplateID, req.AssigneeID, req.DueAt)
	if err != nil {
		writeError(w, h.logger, "assign", err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

type spinRequest struct {
	AssigneeID int64     `json:"assignee_id"`
	DueAt      time.Time `json:"due_at"`
}

// Spin handles POST /api/instances/spin
func (h *InstanceHandler) Spin(w http.ResponseWriter, r *http.Request) {
	var req spinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DueAt.IsZero() {
		req.DueAt = h.engine.Now()
	}

	inst, err := h.engine.AssignRandom(r.Context(), auth.MemberID(r.Context()), req.AssigneeID, req.DueAt)
	if err != nil {
		writeError(w, h.logger, "spin", err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// Complete handles POST /api/instances/{id}/complete
func (h *InstanceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	inst, err := h.engine.RequestCompletion(r.Context(), auth.MemberID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, "request completion", err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type decisionRequest struct {
	Decision model.Decision `json:"decision"`
	Reason   string         `json:"reason"`
}

// Decide handles POST /api/instances/{id}/decision
func (h *InstanceHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inst, err := h.engine.Decide(r.Context(), auth.MemberID(r.Context()), id, req.Decision, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, h.logger, "decide", err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// Approvals handles GET /api/instances/{id}/approvals
func (h *InstanceHandler) Approvals(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if _, err := h.familyInstance(r, id); err != nil {
		writeError(w, h.logger, "list approvals", err)
		return
	}

	records, err := h.engine.ListApprovals(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "list approvals", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(records))
}

type clearRequest struct {
	InstanceIDs []int64 `json:"instance_ids"`
}

// ClearOverdue handles POST /api/instances/clear-overdue
func (h *InstanceHandler) ClearOverdue(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.InstanceIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "instance_ids is required"})
		return
	}

	res, err := h.engine.BulkClearOverdue(r.Context(), auth.MemberID(r.Context()), req.InstanceIDs)
	if err != nil {
		writeError(w, h.logger, "clear overdue", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
