// Package task holds the task instance state machine and the date math used
// to classify and expire instances. Everything here is a pure function of its
// inputs; persistence and authorization live in the callers.
package task

import (
	"time"

	"github.com/dukerupert/chorestars/internal/model"
)

type Op string

const (
	OpRequestCompletion Op = "request_completion"
	OpApprove           Op = "approve"
	OpReject            Op = "reject"
	OpExpire            Op = "expire"
	OpClearOverdue      Op = "clear_overdue"
)

var sources = map[Op][]model.InstanceStatus{
	OpRequestCompletion: {model.StatusOpen},
	OpApprove:           {model.StatusOpen, model.StatusPendingApproval},
	OpReject:            {model.StatusPendingApproval},
	OpExpire:            {model.StatusOpen, model.StatusPendingApproval},
	OpClearOverdue:      {model.StatusOpen, model.StatusPendingApproval},
}

var targets = map[Op]model.InstanceStatus{
	OpRequestCompletion: model.StatusPendingApproval,
	OpApprove:           model.StatusApproved,
	OpReject:            model.StatusOpen,
	OpExpire:            model.StatusExpired,
	OpClearOverdue:      model.StatusApproved,
}

// Sources returns the statuses op may be applied from.
func Sources(op Op) []model.InstanceStatus {
	return sources[op]
}

// Target returns the status op leads to.
func Target(op Op) model.InstanceStatus {
	return targets[op]
}

// Allowed reports whether op may be applied to an instance in status s.
func Allowed(op Op, s model.InstanceStatus) bool {
	for _, from := range sources[op] {
		if from == s {
			return true
		}
	}
	return false
}

// Check validates op against the instance's current status. Approving an
// already-approved instance yields model.ErrAlreadyApproved; every other
// mismatch is a *model.StateError.
func Check(op Op, inst model.TaskInstance) error {
	if Allowed(op, inst.Status) {
		return nil
	}
	if op == OpApprove && inst.Status == model.StatusApproved {
		return model.ErrAlreadyApproved
	}
	return &model.StateError{Op: string(op), InstanceID: inst.ID, Status: inst.Status}
}

// Apply returns inst as it looks after op is performed by actor at now.
// The input is not modified. Request metadata is set only on entering
// pending_approval and cleared on every other transition.
func Apply(op Op, inst model.TaskInstance, actor int64, now time.Time) (model.TaskInstance, error) {
	if err := Check(op, inst); err != nil {
		return inst, err
	}

	switch op {
	case OpExpire:
		if inst.ExpiresAt == nil || !now.After(*inst.ExpiresAt) {
			return inst, &model.StateError{Op: string(op), InstanceID: inst.ID, Status: inst.Status}
		}
	case OpClearOverdue:
		if !IsOverdue(inst, now) {
			return inst, &model.StateError{Op: string(op), InstanceID: inst.ID, Status: inst.Status}
		}
	}

	next := inst
	next.Status = targets[op]
	next.RequestedBy = nil
	next.RequestedAt = nil
	next.UpdatedAt = now

	switch op {
	case OpRequestCompletion:
		next.RequestedBy = &actor
		next.RequestedAt = &now
	case OpApprove:
		next.CompletedAt = &now
	case OpClearOverdue:
		next.CompletedAt = &now
		next.ClearedBy = &actor
	}
	return next, nil
}
