package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"github.com/dukerupert/chorestars/internal/task"
	"github.com/dukerupert/chorestars/internal/taskflow"
)

// SweepResult counts what one reconciliation pass changed.
type SweepResult struct {
	Created int `json:"created"`
	Expired int `json:"expired"`
}

// Scheduler periodically regenerates recurring tasks and expires
// time-boxed ones. Sweeps may also be triggered on demand.
type Scheduler struct {
	mu       sync.RWMutex
	sweepMu  sync.Mutex
	repo     *store.Repository
	engine   *taskflow.Engine
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(repo *store.Repository, engine *taskflow.Engine, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		repo:     repo,
		engine:   engine,
		logger:   logger,
		interval: interval,
	}
}

// Start runs a sweep immediately and then on every tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.Sweep(ctx, s.engine.Now())
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if res.Created > 0 || res.Expired > 0 {
		s.logger.Info("sweep finished", "created", res.Created, "expired", res.Expired)
	}
}

// Sweep reconciles state at now. Running it twice for the same day creates
// nothing new. Days missed while the service was down are not back-filled.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	var res SweepResult
	created, err := s.regenerate(ctx, now)
	res.Created = created
	if err != nil {
		return res, err
	}
	expired, err := s.expire(ctx, now)
	res.Expired = expired
	return res, err
}

func (s *Scheduler) regenerate(ctx context.Context, now time.Time) (int, error) {
	templates, err := s.repo.Templates.ListRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring templates: %w", err)
	}

	created := 0
	for _, tmpl := range templates {
		assignments, err := s.repo.Instances.ListAssignments(ctx, tmpl.ID)
		if err != nil {
			return created, fmt.Errorf("list assignments for template %d: %w", tmpl.ID, err)
		}
		for _, a := range assignments {
			_, err := s.engine.AssignRecurring(ctx, tmpl, a.AssigneeID, a.AssignedBy, now)
			switch {
			case err == nil:
				created++
			case errors.Is(err, model.ErrDuplicateInstance):
			case errors.Is(err, model.ErrValidation):
				s.logger.Warn("skipping recurring assignment", "template_id", tmpl.ID, "assignee_id", a.AssigneeID, "error", err)
			default:
				return created, err
			}
		}
	}
	return created, nil
}

func (s *Scheduler) expire(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.Instances.ListExpirable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list expirable instances: %w", err)
	}

	expired := 0
	for _, inst := range candidates {
		if !task.IsExpired(inst, now) {
			continue
		}
		_, err := s.engine.Expire(ctx, inst.ID, now)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, model.ErrInvalidState):
			// Resolved by someone else since the listing.
			s.logger.Debug("instance moved before expiry", "instance_id", inst.ID)
		default:
			return expired, err
		}
	}
	return expired, nil
}
