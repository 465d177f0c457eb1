// Package notify fans committed events out to connected devices and web
// push subscriptions. Delivery is best-effort: failures are logged and
// never reach the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/push"
	"github.com/dukerupert/chorestars/internal/store"
	"github.com/dukerupert/chorestars/internal/websocket"
)

const deliveryTimeout = 15 * time.Second

// Broadcaster pushes sync messages to a family's connected devices.
type Broadcaster interface {
	Broadcast(familyID int64, msg websocket.Message)
}

// Pusher delivers a single web push notification.
type Pusher interface {
	Enabled() bool
	Send(ctx context.Context, sub model.PushSubscription, payload push.Payload) error
}

type Dispatcher struct {
	hub    Broadcaster
	pusher Pusher
	repo   *store.Repository
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New builds a dispatcher. hub and pusher may be nil to disable a sink.
func New(hub Broadcaster, pusher Pusher, repo *store.Repository, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		pusher: pusher,
		repo:   repo,
		logger: logger,
	}
}

// Notify broadcasts ev to the family's devices right away and sends web
// push in the background.
func (d *Dispatcher) Notify(ctx context.Context, ev model.Event) {
	if d.hub != nil {
		d.hub.Broadcast(ev.FamilyID, Message(ev))
	}

	if d.pusher == nil || !d.pusher.Enabled() {
		return
	}
	payload, ok := Payload(ev)
	if !ok {
		return
	}

	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		defer cancel()
		if err := d.push(ctx, ev, payload); err != nil {
			d.logger.Warn("push delivery failed", "event", ev.Type, "entity_id", ev.EntityID, "error", err)
		}
	}()
}

// Wait blocks until in-flight push deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) push(ctx context.Context, ev model.Event, payload push.Payload) error {
	recipients, err := d.recipients(ctx, ev)
	if err != nil {
		return err
	}
	subs, err := d.repo.Push.ListByMembers(ctx, recipients)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		err := d.pusher.Send(ctx, sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, push.ErrExpired):
			d.logger.Info("removing expired push subscription", "member_id", sub.MemberID)
			if err := d.repo.Push.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				errs = append(errs, err)
			}
		default:
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
		}
	}
	return errors.Join(errs...)
}

// recipients picks who hears about ev: guardians for work awaiting review,
// the affected member for everything else.
func (d *Dispatcher) recipients(ctx context.Context, ev model.Event) ([]int64, error) {
	if ev.Type != model.EventTaskPending {
		return []int64{ev.MemberID}, nil
	}
	members, err := d.repo.Members.ListByFamily(ctx, ev.FamilyID, false)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, m := range members {
		if m.IsGuardian() && m.ID != ev.MemberID {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Message converts ev into the realtime sync message for devices.
func Message(ev model.Event) websocket.Message {
	entity, action := "task", ""
	switch ev.Type {
	case model.EventTaskAssigned:
		action = "assigned"
	case model.EventTaskPending:
		action = "pending"
	case model.EventTaskApproved:
		action = "approved"
	case model.EventTaskRejected:
		action = "rejected"
	case model.EventTaskExpired:
		action = "expired"
	case model.EventTaskCleared:
		action = "cleared"
	case model.EventStarsChanged:
		entity, action = "stars", "changed"
	case model.EventRewardRedeemed:
		entity, action = "reward", "redeemed"
	default:
		entity, action = "event", string(ev.Type)
	}
	extra := map[string]any{"member_id": ev.MemberID}
	if ev.Stars != 0 {
		extra["stars"] = ev.Stars
	}
	return websocket.NewMessage(entity, action, ev.EntityID, extra)
}

// Payload renders the push notification for ev. Events that only matter
// to open screens return false.
func Payload(ev model.Event) (push.Payload, bool) {
	tag := fmt.Sprintf("task-%d", ev.EntityID)
	switch ev.Type {
	case model.EventTaskAssigned:
		return push.Payload{Title: "New task", Body: fmt.Sprintf("%s (%d stars)", ev.Title, ev.Stars), URL: "/", Tag: tag}, true
	case model.EventTaskPending:
		return push.Payload{Title: "Waiting for approval", Body: ev.Title, URL: "/", Tag: tag}, true
	case model.EventTaskApproved:
		return push.Payload{Title: "Task approved", Body: fmt.Sprintf("%s: +%d stars", ev.Title, ev.Stars), URL: "/", Tag: tag}, true
	case model.EventTaskRejected:
		return push.Payload{Title: "Not quite done", Body: fmt.Sprintf("%s needs another try", ev.Title), URL: "/", Tag: tag}, true
	case model.EventTaskExpired:
		return push.Payload{Title: "Time's up", Body: fmt.Sprintf("%s expired", ev.Title), URL: "/", Tag: tag}, true
	case model.EventRewardRedeemed:
		return push.Payload{Title: "Reward claimed", Body: ev.Title, URL: "/rewards", Tag: fmt.Sprintf("reward-%d", ev.EntityID)}, true
	}
	return push.Payload{}, false
}
