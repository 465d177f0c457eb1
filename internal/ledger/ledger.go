// Package ledger owns star balances. A member's total is always the sum of
// their ledger entries; nothing else stores stars.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notifier hears about committed balance changes.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Event) {}

type Options struct {
	Timeout     time.Duration
	ReadRetries uint64
}

type Service struct {
	repo     *store.Repository
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	opts     Options
}

func NewService(repo *store.Repository, notifier Notifier, logger *slog.Logger, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("chorestars/ledger"),
		opts:     opts,
	}
}

// NewAward builds the credit for an approved task instance.
func NewAward(inst model.TaskInstance, stars int, creatorID int64) (model.StarsLedgerEntry, error) {
	if stars <= 0 {
		return model.StarsLedgerEntry{}, model.Validationf("task award must be positive, got %d", stars)
	}
	id := inst.ID
	return model.StarsLedgerEntry{
		MemberID:       inst.AssigneeID,
		Delta:          stars,
		Reason:         model.ReasonTaskCompletion,
		CreatedBy:      creatorID,
		TaskInstanceID: &id,
	}, nil
}

// Credit adds amount stars to memberID on behalf of actorID, who must be a
// guardian of the member's family. A repeated award for the same task
// instance fails with model.ErrDuplicateAward.
func (s *Service) Credit(ctx context.Context, actorID, memberID int64, amount int, reason string, instanceID *int64) (*model.StarsLedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ledger.credit", trace.WithAttributes(
		attribute.Int64("member.id", memberID),
		attribute.Int("amount", amount),
	))
	defer span.End()

	if amount <= 0 {
		return nil, model.Validationf("credit amount must be positive, got %d", amount)
	}
	if reason == "" {
		reason = model.ReasonBonus
	}

	member, err := s.authorize(ctx, actorID, memberID)
	if err != nil {
		return nil, err
	}

	e, err := s.repo.Ledger.Insert(ctx, model.StarsLedgerEntry{
		MemberID:       memberID,
		Delta:          amount,
		Reason:         reason,
		CreatedBy:      actorID,
		TaskInstanceID: instanceID,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("credit stars: %w", err)
	}

	s.logger.Info("stars credited", "member_id", memberID, "delta", amount, "reason", reason, "by", actorID)
	s.notifier.Notify(ctx, model.Event{
		Type:     model.EventStarsChanged,
		FamilyID: member.FamilyID,
		EntityID: e.ID,
		MemberID: memberID,
		Stars:    amount,
	})
	return e, nil
}

// Debit removes amount stars from memberID. Totals may go negative.
func (s *Service) Debit(ctx context.Context, actorID, memberID int64, amount int, reason string) (*model.StarsLedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ledger.debit", trace.WithAttributes(
		attribute.Int64("member.id", memberID),
		attribute.Int("amount", amount),
	))
	defer span.End()

	if amount <= 0 {
		return nil, model.Validationf("debit amount must be positive, got %d", amount)
	}
	if reason == "" {
		reason = model.ReasonManualDeduction
	}

	member, err := s.authorize(ctx, actorID, memberID)
	if err != nil {
		return nil, err
	}

	e, err := s.repo.Ledger.Insert(ctx, model.StarsLedgerEntry{
		MemberID:  memberID,
		Delta:     -amount,
		Reason:    reason,
		CreatedBy: actorID,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("debit stars: %w", err)
	}

	s.logger.Info("stars debited", "member_id", memberID, "delta", -amount, "reason", reason, "by", actorID)
	s.notifier.Notify(ctx, model.Event{
		Type:     model.EventStarsChanged,
		FamilyID: member.FamilyID,
		EntityID: e.ID,
		MemberID: memberID,
		Stars:    -amount,
	})
	return e, nil
}

// TotalFor sums the member's ledger. It is never cached.
func (s *Service) TotalFor(ctx context.Context, memberID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ledger.total_for", trace.WithAttributes(attribute.Int64("member.id", memberID)))
	defer span.End()

	total, err := store.Read(ctx, s.opts.ReadRetries, func(ctx context.Context) (int, error) {
		return s.repo.Ledger.TotalFor(ctx, memberID)
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("total", total))
	return total, nil
}

func (s *Service) History(ctx context.Context, memberID int64, limit int) ([]model.StarsLedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ledger.history")
	defer span.End()

	return store.Read(ctx, s.opts.ReadRetries, func(ctx context.Context) ([]model.StarsLedgerEntry, error) {
		return s.repo.Ledger.ListByMember(ctx, memberID, limit)
	})
}

func (s *Service) Balances(ctx context.Context, familyID int64) ([]model.StarBalance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "ledger.balances")
	defer span.End()

	return store.Read(ctx, s.opts.ReadRetries, func(ctx context.Context) ([]model.StarBalance, error) {
		return s.repo.Ledger.Balances(ctx, familyID)
	})
}

// authorize loads the beneficiary and checks that actorID is a guardian of
// their family.
func (s *Service) authorize(ctx context.Context, actorID, memberID int64) (*model.Member, error) {
	member, err := s.repo.Members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.Active() {
		return nil, model.Validationf("member %d not found", memberID)
	}

	actor, err := s.repo.Members.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil || !actor.Manages(member.FamilyID) {
		return nil, fmt.Errorf("adjust stars: %w", model.ErrForbidden)
	}
	return member, nil
}

// IsDuplicate reports whether err only signals an award that already
// landed.
func IsDuplicate(err error) bool {
	return errors.Is(err, model.ErrDuplicateAward)
}
