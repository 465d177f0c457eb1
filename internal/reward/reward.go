// Package reward lets members spend stars on family rewards.
package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Notifier interface {
	Notify(ctx context.Context, ev model.Event)
}

type Service struct {
	repo     *store.Repository
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	timeout  time.Duration
	now      func() time.Time
}

func NewService(repo *store.Repository, notifier Notifier, logger *slog.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		tracer:   otel.Tracer("chorestars/reward"),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Create adds a reward to the acting guardian's family.
func (s *Service) Create(ctx context.Context, actorID int64, title, description string, cost int) (*model.Reward, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "reward.create")
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.Validationf("title is required")
	}
	if cost < 0 {
		return nil, model.Validationf("cost must not be negative")
	}

	actor, err := s.repo.Members.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil || !actor.Manages(actor.FamilyID) {
		return nil, fmt.Errorf("create reward: %w", model.ErrForbidden)
	}

	r, err := s.repo.Rewards.Create(ctx, actor.FamilyID, title, description, cost)
	if err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}
	s.logger.Info("reward created", "reward_id", r.ID, "cost", r.Cost)
	return r, nil
}

func (s *Service) List(ctx context.Context, familyID int64, includeRedeemed bool) ([]model.Reward, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.repo.Rewards.ListByFamily(ctx, familyID, includeRedeemed)
}

// Redeem spends cost stars from memberID on an active reward. The status
// flip and the debit commit together.
func (s *Service) Redeem(ctx context.Context, rewardID, memberID int64) (*model.Reward, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "reward.redeem", trace.WithAttributes(
		attribute.Int64("reward.id", rewardID),
		attribute.Int64("member.id", memberID),
	))
	defer span.End()

	var redeemed *model.Reward
	err := s.repo.InTx(ctx, func(tx *store.Repository) error {
		r, err := tx.Rewards.GetByID(ctx, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("reward %d: %w", rewardID, model.ErrNotFound)
		}
		member, err := tx.Members.GetByID(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil || !member.Active() || member.FamilyID != r.FamilyID {
			return fmt.Errorf("redeem reward: %w", model.ErrForbidden)
		}
		if r.Status != model.RewardActive {
			return fmt.Errorf("reward %d already redeemed: %w", rewardID, model.ErrInvalidState)
		}

		total, err := tx.Ledger.TotalFor(ctx, memberID)
		if err != nil {
			return err
		}
		if total < r.Cost {
			return fmt.Errorf("need %d stars, have %d: %w", r.Cost, total, model.ErrInsufficientStars)
		}

		if err := tx.Rewards.MarkRedeemed(ctx, rewardID, memberID, s.now()); err != nil {
			return err
		}
		if r.Cost > 0 {
			if _, err := tx.Ledger.Insert(ctx, model.StarsLedgerEntry{
				MemberID:  memberID,
				Delta:     -r.Cost,
				Reason:    model.ReasonRewardRedemption,
				CreatedBy: memberID,
			}); err != nil {
				return err
			}
		}
		redeemed, err = tx.Rewards.GetByID(ctx, rewardID)
		return err
	})
	if err != nil {
		if !errors.Is(err, model.ErrInsufficientStars) {
			span.RecordError(err)
		}
		return nil, err
	}

	s.logger.Info("reward redeemed", "reward_id", rewardID, "member_id", memberID, "cost", redeemed.Cost)
	if s.notifier != nil {
		s.notifier.Notify(ctx, model.Event{
			Type:     model.EventRewardRedeemed,
			FamilyID: redeemed.FamilyID,
			EntityID: redeemed.ID,
			MemberID: memberID,
			Title:    redeemed.Title,
			Stars:    -redeemed.Cost,
		})
	}
	return redeemed, nil
}
