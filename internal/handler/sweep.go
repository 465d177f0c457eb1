package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorestars/internal/scheduler"
)

// Sweeper runs one recurrence and expiry pass.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (scheduler.SweepResult, error)
}

type SweepHandler struct {
	sweeper Sweeper
	now     func() time.Time
	logger  *slog.Logger
}

func NewSweepHandler(s Sweeper, now func() time.Time, logger *slog.Logger) *SweepHandler {
	if now == nil {
		now = time.Now
	}
	return &SweepHandler{sweeper: s, now: now, logger: logger}
}

// Sweep handles POST /api/sweep
func (h *SweepHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context(), h.now())
	if err != nil {
		writeError(w, h.logger, "sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
