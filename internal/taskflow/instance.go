package taskflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/chorestars/internal/ledger"
	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"github.com/dukerupert/chorestars/internal/task"
	"go.opentelemetry.io/otel/attribute"
)

// Assign creates an open instance of templateID for assigneeID. A zero
// dueAt means the end of today.
func (e *Engine) Assign(ctx context.Context, actorID, templateID, assigneeID int64, dueAt time.Time) (*model.TaskInstance, error) {
	ctx, end := e.begin(ctx, "taskflow.assign",
		attribute.Int64("template.id", templateID),
		attribute.Int64("assignee.id", assigneeID),
	)
	defer end()

	tmpl, err := e.repo.Templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, model.Validationf("template %d not found", templateID)
	}
	if _, err := e.guardian(ctx, e.repo, actorID, tmpl.FamilyID); err != nil {
		return nil, err
	}
	return e.assign(ctx, *tmpl, actorID, assigneeID, dueAt)
}

// AssignRandom spins the wheel: it picks one of the family's assignable
// templates uniformly and assigns it.
func (e *Engine) AssignRandom(ctx context.Context, actorID, assigneeID int64, dueAt time.Time) (*model.TaskInstance, error) {
	ctx, end := e.begin(ctx, "taskflow.assign_random", attribute.Int64("assignee.id", assigneeID))
	defer end()

	actor, err := e.self(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsGuardian() {
		return nil, fmt.Errorf("spin: %w", model.ErrForbidden)
	}

	templates, err := store.Read(ctx, e.opts.ReadRetries, func(ctx context.Context) ([]model.TaskTemplate, error) {
		return e.repo.Templates.ListAssignable(ctx, actor.FamilyID)
	})
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, model.Validationf("no enabled templates to pick from")
	}

	picked := templates[e.opts.Pick(len(templates))]
	e.logger.Debug("wheel picked template", "template_id", picked.ID, "candidates", len(templates))
	return e.assign(ctx, picked, actorID, assigneeID, dueAt)
}

// AssignRecurring creates the day's instance of a recurring template for a
// standing assignment. It fails with model.ErrDuplicateInstance when the
// slot is already taken.
func (e *Engine) AssignRecurring(ctx context.Context, tmpl model.TaskTemplate, assigneeID, assignedBy int64, day time.Time) (*model.TaskInstance, error) {
	ctx, end := e.begin(ctx, "taskflow.assign_recurring", attribute.Int64("template.id", tmpl.ID))
	defer end()

	day = day.In(e.opts.Location)
	return e.assign(ctx, tmpl, assignedBy, assigneeID, task.EndOfDay(day))
}

func (e *Engine) assign(ctx context.Context, tmpl model.TaskTemplate, assignedBy, assigneeID int64, dueAt time.Time) (*model.TaskInstance, error) {
	if !tmpl.Assignable() {
		return nil, model.Validationf("template %d is disabled or archived", tmpl.ID)
	}

	assignee, err := e.repo.Members.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	if assignee == nil || !assignee.Active() || assignee.FamilyID != tmpl.FamilyID {
		return nil, model.Validationf("member %d not found", assigneeID)
	}

	if dueAt.IsZero() {
		dueAt = task.EndOfDay(e.Now())
	}
	dueAt = dueAt.In(e.opts.Location)

	var slot string
	if tmpl.Schedule == model.ScheduleRecurringDaily {
		slot = task.DayKey(dueAt)
	}

	inst, err := e.repo.Instances.Create(ctx, model.TaskInstance{
		TemplateID: tmpl.ID,
		FamilyID:   tmpl.FamilyID,
		AssigneeID: assigneeID,
		AssignedBy: assignedBy,
		DueAt:      dueAt,
		ExpiresAt:  task.ExpiresAt(tmpl, dueAt),
	}, slot)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateInstance) {
			return nil, err
		}
		return nil, fmt.Errorf("assign: %w", err)
	}

	e.logger.Info("task assigned",
		"instance_id", inst.ID,
		"template_id", tmpl.ID,
		"assignee_id", assigneeID,
		"due_at", inst.DueAt,
	)
	e.notify(ctx, model.EventTaskAssigned, *inst, tmpl.Title, tmpl.Stars)
	return inst, nil
}

// RequestCompletion marks an open instance done on the assignee's behalf.
// A lone guardian completing their own task is approved on the spot;
// everyone else waits in pending_approval for a guardian.
func (e *Engine) RequestCompletion(ctx context.Context, requesterID, instanceID int64) (*model.TaskInstance, error) {
	ctx, end := e.begin(ctx, "taskflow.request_completion", attribute.Int64("instance.id", instanceID))
	defer end()

	inst, err := e.instance(ctx, e.repo, instanceID)
	if err != nil {
		return nil, err
	}
	requester, err := e.actor(ctx, e.repo, requesterID, inst.FamilyID)
	if err != nil {
		return nil, err
	}
	if !task.CanRequest(*requester, *inst) {
		return nil, fmt.Errorf("request completion: %w", model.ErrForbidden)
	}
	if err := e.closeIfExpired(ctx, "request_completion", *inst); err != nil {
		return nil, err
	}
	if err := task.Check(task.OpRequestCompletion, *inst); err != nil {
		return nil, err
	}

	assignee, err := e.repo.Members.GetByID(ctx, inst.AssigneeID)
	if err != nil {
		return nil, err
	}
	if assignee == nil {
		return nil, fmt.Errorf("assignee %d: %w", inst.AssigneeID, model.ErrNotFound)
	}
	guardians, err := e.repo.Members.CountGuardians(ctx, inst.FamilyID)
	if err != nil {
		return nil, err
	}

	if !task.RequiresApproval(*assignee, guardians) {
		e.logger.Info("auto-approving lone guardian completion", "instance_id", inst.ID, "member_id", assignee.ID)
		return e.approve(ctx, *inst, assignee.ID, model.ReasonAutoApproved)
	}

	next, err := task.Apply(task.OpRequestCompletion, *inst, requesterID, e.Now())
	if err != nil {
		return nil, err
	}
	if err := e.repo.Instances.Transition(ctx, inst.Status, next); err != nil {
		return nil, fmt.Errorf("request completion: %w", err)
	}

	e.logger.Info("completion requested", "instance_id", inst.ID, "requested_by", requesterID)
	tmpl, _ := e.repo.Templates.GetByID(ctx, inst.TemplateID)
	e.notify(ctx, model.EventTaskPending, next, titleOf(tmpl), starsOf(tmpl))
	return &next, nil
}

// Decide records a guardian's ruling on a pending instance.
func (e *Engine) Decide(ctx context.Context, approverID, instanceID int64, decision model.Decision, reason string) (*model.TaskInstance, error) {
	ctx, end := e.begin(ctx, "taskflow.decide",
		attribute.Int64("instance.id", instanceID),
		attribute.String("decision", string(decision)),
	)
	defer end()

	if !decision.Valid() {
		return nil, model.Validationf("invalid decision %q", decision)
	}

	inst, err := e.instance(ctx, e.repo, instanceID)
	if err != nil {
		return nil, err
	}
	approver, err := e.actor(ctx, e.repo, approverID, inst.FamilyID)
	if err != nil {
		return nil, err
	}
	guardians, err := e.repo.Members.CountGuardians(ctx, inst.FamilyID)
	if err != nil {
		return nil, err
	}
	if !task.CanDecide(*approver, *inst, guardians) {
		return nil, fmt.Errorf("decide: %w", model.ErrForbidden)
	}
	if err := e.closeIfExpired(ctx, "decide", *inst); err != nil {
		return nil, err
	}

	if inst.Status == model.StatusApproved && decision == model.DecisionApprove {
		e.logger.Info("instance already approved", "instance_id", inst.ID, "approver_id", approverID)
		return nil, fmt.Errorf("decide instance %d: %w", inst.ID, model.ErrAlreadyApproved)
	}
	if inst.Status != model.StatusPendingApproval {
		return nil, &model.StateError{Op: "decide", InstanceID: inst.ID, Status: inst.Status}
	}

	if decision == model.DecisionApprove {
		return e.approve(ctx, *inst, approverID, reason)
	}
	return e.reject(ctx, *inst, approverID, reason)
}

func (e *Engine) Approve(ctx context.Context, approverID, instanceID int64) (*model.TaskInstance, error) {
	return e.Decide(ctx, approverID, instanceID, model.DecisionApprove, "")
}

func (e *Engine) Reject(ctx context.Context, approverID, instanceID int64, reason string) (*model.TaskInstance, error) {
	return e.Decide(ctx, approverID, instanceID, model.DecisionReject, reason)
}

// approve moves inst to approved, credits the template's stars and records
// the decision in one transaction. A lost race against another approval
// reports model.ErrAlreadyApproved.
func (e *Engine) approve(ctx context.Context, inst model.TaskInstance, approverID int64, reason string) (*model.TaskInstance, error) {
	tmpl, err := e.template(ctx, e.repo, inst.TemplateID)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	next, err := task.Apply(task.OpApprove, inst, approverID, now)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyApproved) {
			e.logger.Info("instance already approved", "instance_id", inst.ID)
		}
		return nil, err
	}
	award, err := ledger.NewAward(next, tmpl.Stars, approverID)
	if err != nil {
		return nil, err
	}

	credited := true
	err = e.repo.InTx(ctx, func(tx *store.Repository) error {
		if err := tx.Instances.Transition(ctx, inst.Status, next); err != nil {
			return err
		}
		if _, err := tx.Ledger.Insert(ctx, award); err != nil {
			if !ledger.IsDuplicate(err) {
				return err
			}
			credited = false
			e.logger.Debug("award already on ledger", "instance_id", inst.ID)
		}
		_, err := tx.Approvals.Create(ctx, model.ApprovalRecord{
			InstanceID: inst.ID,
			ApproverID: approverID,
			Decision:   model.DecisionApprove,
			Reason:     reason,
			DecidedAt:  now,
		})
		return err
	})
	if errors.Is(err, store.ErrStaleStatus) {
		return nil, e.staleApprove(ctx, inst)
	}
	if err != nil {
		return nil, fmt.Errorf("approve instance %d: %w", inst.ID, err)
	}

	e.logger.Info("task approved",
		"instance_id", inst.ID,
		"assignee_id", inst.AssigneeID,
		"approver_id", approverID,
		"stars", tmpl.Stars,
	)
	e.notify(ctx, model.EventTaskApproved, next, tmpl.Title, tmpl.Stars)
	if credited {
		e.notify(ctx, model.EventStarsChanged, next, tmpl.Title, tmpl.Stars)
	}
	return &next, nil
}

// staleApprove explains a failed approval CAS by re-reading the row.
func (e *Engine) staleApprove(ctx context.Context, inst model.TaskInstance) error {
	cur, err := e.repo.Instances.GetByID(ctx, inst.ID)
	if err != nil {
		return err
	}
	if cur != nil && cur.Status == model.StatusApproved {
		e.logger.Info("instance already approved", "instance_id", inst.ID)
		return fmt.Errorf("approve instance %d: %w", inst.ID, model.ErrAlreadyApproved)
	}
	status := inst.Status
	if cur != nil {
		status = cur.Status
	}
	return &model.StateError{Op: string(task.OpApprove), InstanceID: inst.ID, Status: status}
}

func (e *Engine) reject(ctx context.Context, inst model.TaskInstance, approverID int64, reason string) (*model.TaskInstance, error) {
	now := e.Now()
	next, err := task.Apply(task.OpReject, inst, approverID, now)
	if err != nil {
		return nil, err
	}

	err = e.repo.InTx(ctx, func(tx *store.Repository) error {
		if err := tx.Instances.Transition(ctx, inst.Status, next); err != nil {
			return err
		}
		_, err := tx.Approvals.Create(ctx, model.ApprovalRecord{
			InstanceID: inst.ID,
			ApproverID: approverID,
			Decision:   model.DecisionReject,
			Reason:     reason,
			DecidedAt:  now,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reject instance %d: %w", inst.ID, err)
	}

	e.logger.Info("task rejected", "instance_id", inst.ID, "approver_id", approverID)
	tmpl, _ := e.repo.Templates.GetByID(ctx, inst.TemplateID)
	e.notify(ctx, model.EventTaskRejected, next, titleOf(tmpl), starsOf(tmpl))
	return &next, nil
}

// Expire closes a time-boxed instance whose window passed before now.
func (e *Engine) Expire(ctx context.Context, instanceID int64, now time.Time) (*model.TaskInstance, error) {
	ctx, end := e.begin(ctx, "taskflow.expire", attribute.Int64("instance.id", instanceID))
	defer end()

	inst, err := e.instance(ctx, e.repo, instanceID)
	if err != nil {
		return nil, err
	}
	return e.expire(ctx, *inst, now)
}

func (e *Engine) expire(ctx context.Context, inst model.TaskInstance, now time.Time) (*model.TaskInstance, error) {
	next, err := task.Apply(task.OpExpire, inst, 0, now)
	if err != nil {
		return nil, err
	}
	if err := e.repo.Instances.Transition(ctx, inst.Status, next); err != nil {
		return nil, fmt.Errorf("expire instance %d: %w", inst.ID, err)
	}

	e.logger.Info("task expired", "instance_id", inst.ID, "expires_at", inst.ExpiresAt)
	tmpl, _ := e.repo.Templates.GetByID(ctx, inst.TemplateID)
	e.notify(ctx, model.EventTaskExpired, next, titleOf(tmpl), 0)
	return &next, nil
}

// closeIfExpired expires inst when its window has already passed, so a
// command issued before the next sweep cannot pay out a task that lists
// report as expired. It returns a StateError whenever inst is expired.
func (e *Engine) closeIfExpired(ctx context.Context, op string, inst model.TaskInstance) error {
	now := e.Now()
	if !task.IsExpired(inst, now) {
		return nil
	}
	if inst.Status != model.StatusExpired {
		if _, err := e.expire(ctx, inst, now); err != nil && !errors.Is(err, model.ErrInvalidState) {
			return err
		}
	}
	return &model.StateError{Op: op, InstanceID: inst.ID, Status: model.StatusExpired}
}

// ClearResult lists which instances a bulk clear moved and which it left
// alone because they were not overdue, not found, or changed underneath it.
type ClearResult struct {
	Cleared []int64 `json:"cleared"`
	Skipped []int64 `json:"skipped"`
}

// BulkClearOverdue marks overdue instances approved without paying stars.
func (e *Engine) BulkClearOverdue(ctx context.Context, guardianID int64, instanceIDs []int64) (*ClearResult, error) {
	ctx, end := e.begin(ctx, "taskflow.bulk_clear_overdue", attribute.Int("instance.count", len(instanceIDs)))
	defer end()

	guardian, err := e.self(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	if !guardian.IsGuardian() {
		return nil, fmt.Errorf("clear overdue: %w", model.ErrForbidden)
	}

	now := e.Now()
	res := &ClearResult{Cleared: []int64{}, Skipped: []int64{}}
	for _, id := range instanceIDs {
		inst, err := e.repo.Instances.GetByID(ctx, id)
		if err != nil {
			return res, err
		}
		if inst == nil || inst.FamilyID != guardian.FamilyID {
			res.Skipped = append(res.Skipped, id)
			continue
		}

		next, err := task.Apply(task.OpClearOverdue, *inst, guardianID, now)
		if err != nil {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err := e.repo.Instances.Transition(ctx, inst.Status, next); err != nil {
			if errors.Is(err, model.ErrInvalidState) {
				res.Skipped = append(res.Skipped, id)
				continue
			}
			return res, fmt.Errorf("clear instance %d: %w", id, err)
		}
		res.Cleared = append(res.Cleared, id)
		e.notify(ctx, model.EventTaskCleared, next, "", 0)
	}

	e.logger.Info("overdue tasks cleared", "by", guardianID, "cleared", len(res.Cleared), "skipped", len(res.Skipped))
	return res, nil
}

// ListInstances returns matching instances classified against now.
func (e *Engine) ListInstances(ctx context.Context, f model.InstanceFilter) ([]model.InstanceView, error) {
	ctx, end := e.begin(ctx, "taskflow.list_instances")
	defer end()

	views, err := store.Read(ctx, e.opts.ReadRetries, func(ctx context.Context) ([]model.InstanceView, error) {
		return e.repo.Instances.List(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	now := e.Now()
	for n := range views {
		views[n].Classification = task.Classify(views[n].TaskInstance, now)
	}
	return views, nil
}

func (e *Engine) GetInstance(ctx context.Context, id int64) (*model.InstanceView, error) {
	ctx, end := e.begin(ctx, "taskflow.get_instance", attribute.Int64("instance.id", id))
	defer end()

	inst, err := store.Read(ctx, e.opts.ReadRetries, func(ctx context.Context) (*model.TaskInstance, error) {
		return e.instance(ctx, e.repo, id)
	})
	if err != nil {
		return nil, err
	}
	tmpl, err := e.template(ctx, e.repo, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	return &model.InstanceView{
		TaskInstance:   *inst,
		TemplateTitle:  tmpl.Title,
		Stars:          tmpl.Stars,
		Classification: task.Classify(*inst, e.Now()),
	}, nil
}

func (e *Engine) ListApprovals(ctx context.Context, instanceID int64) ([]model.ApprovalRecord, error) {
	ctx, end := e.begin(ctx, "taskflow.list_approvals", attribute.Int64("instance.id", instanceID))
	defer end()

	return store.Read(ctx, e.opts.ReadRetries, func(ctx context.Context) ([]model.ApprovalRecord, error) {
		return e.repo.Approvals.ListByInstance(ctx, instanceID)
	})
}

func titleOf(t *model.TaskTemplate) string {
	if t == nil {
		return ""
	}
	return t.Title
}

func starsOf(t *model.TaskTemplate) int {
	if t == nil {
		return 0
	}
	return t.Stars
}
