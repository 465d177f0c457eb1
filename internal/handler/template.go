package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorestars/internal/auth"
	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/taskflow"
)

type TemplateHandler struct {
	engine *taskflow.Engine
	logger *slog.Logger
}

func NewTemplateHandler(engine *taskflow.Engine, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{engine: engine, logger: logger}
}

// List handles GET /api/templates?archived=true
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("archived") == "true"

	templates, err := h.engine.ListTemplates(r.Context(), auth.FamilyID(r.Context()), includeArchived)
	if err != nil {
		writeError(w, h.logger, "list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(templates))
}

// Create handles POST /api/templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.TemplateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	tmpl, err := h.engine.CreateTemplate(r.Context(), auth.MemberID(r.Context()), in)
	if err != nil {
		writeError(w, h.logger, "create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

// Update handles PUT /api/templates/{id}
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var in model.TemplateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	tmpl, err := h.engine.UpdateTemplate(r.Context(), auth.MemberID(r.Context()), id, in)
	if err != nil {
		writeError(w, h.logger, "update template", err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled handles POST /api/templates/{id}/enabled
func (h *TemplateHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req enabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tmpl, err := h.engine.SetTemplateEnabled(r.Context(), auth.MemberID(r.Context()), id, req.Enabled)
	if err != nil {
		writeError(w, h.logger, "set template enabled", err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// Archive handles POST /api/templates/{id}/archive
func (h *TemplateHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	tmpl, err := h.engine.ArchiveTemplate(r.Context(), auth.MemberID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, "archive template", err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}
