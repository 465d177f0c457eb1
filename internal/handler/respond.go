package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	return true
}

// writeError maps engine errors onto HTTP responses. Only unexpected
// failures are logged at error level.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, model.ErrAlreadyApproved):
		writeJSON(w, http.StatusOK, map[string]string{"message": "this was already handled"})
	case errors.Is(err, model.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, model.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not allowed"})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrDuplicateInstance):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "state changed, please refresh"})
	case errors.Is(err, model.ErrInsufficientStars):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "not enough stars"})
	case errors.Is(err, model.ErrTransient):
		logger.Warn(op, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy, please try again"})
	default:
		logger.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "something went wrong, please try again"})
	}
}

// parseFlexibleTime accepts RFC3339 or a bare YYYY-MM-DD date, which is
// read as midnight in loc.
func parseFlexibleTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
