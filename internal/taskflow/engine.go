// Package taskflow runs the task lifecycle: family and template registry,
// assignment, completion requests, guardian decisions, expiry and the
// overdue escape hatch. State rules come from package task; this package
// adds authorization, persistence and notification.
package taskflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier receives committed lifecycle events. Implementations must not
// block and must not fail the caller.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Event) {}

type Options struct {
	// Timeout bounds each operation, including its storage round trips.
	Timeout     time.Duration
	ReadRetries uint64
	Location    *time.Location
	Now         func() time.Time
	// Pick returns a uniform index in [0, n). Defaults to math/rand/v2.
	Pick func(n int) int
}

type Engine struct {
	repo     *store.Repository
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	opts     Options
}

func NewEngine(repo *store.Repository, notifier Notifier, logger *slog.Logger, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Engine{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("chorestars/taskflow"),
		opts:     opts,
	}
}

// Now returns the engine clock in the family time zone.
func (e *Engine) Now() time.Time {
	return e.opts.Now().In(e.opts.Location)
}

func (e *Engine) Location() *time.Location {
	return e.opts.Location
}

// begin bounds ctx by the operation timeout and opens a span.
func (e *Engine) begin(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	ctx, span := e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() {
		span.End()
		cancel()
	}
}

func (e *Engine) notify(ctx context.Context, typ model.EventType, inst model.TaskInstance, title string, stars int) {
	e.notifier.Notify(ctx, model.Event{
		Type:     typ,
		FamilyID: inst.FamilyID,
		EntityID: inst.ID,
		MemberID: inst.AssigneeID,
		Title:    title,
		Stars:    stars,
	})
}

// actor loads an active member acting on the family's behalf.
func (e *Engine) actor(ctx context.Context, q *store.Repository, id, familyID int64) (*model.Member, error) {
	m, err := q.Members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Active() || m.FamilyID != familyID {
		return nil, fmt.Errorf("member %d: %w", id, model.ErrForbidden)
	}
	return m, nil
}

// guardian loads an actor and requires the guardian role.
func (e *Engine) guardian(ctx context.Context, q *store.Repository, id, familyID int64) (*model.Member, error) {
	m, err := e.actor(ctx, q, id, familyID)
	if err != nil {
		return nil, err
	}
	if !m.IsGuardian() {
		return nil, fmt.Errorf("member %d is not a guardian: %w", id, model.ErrForbidden)
	}
	return m, nil
}

// self loads the acting member without knowing the family up front.
func (e *Engine) self(ctx context.Context, id int64) (*model.Member, error) {
	m, err := e.repo.Members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Active() {
		return nil, fmt.Errorf("member %d: %w", id, model.ErrForbidden)
	}
	return m, nil
}

func (e *Engine) instance(ctx context.Context, q *store.Repository, id int64) (*model.TaskInstance, error) {
	inst, err := q.Instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %d: %w", id, model.ErrNotFound)
	}
	return inst, nil
}

func (e *Engine) template(ctx context.Context, q *store.Repository, id int64) (*model.TaskTemplate, error) {
	t, err := q.Templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("template %d: %w", id, model.ErrNotFound)
	}
	return t, nil
}
