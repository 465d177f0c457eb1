package taskflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorestars/internal/database"
	"github.com/dukerupert/chorestars/internal/model"
	"github.com/dukerupert/chorestars/internal/store"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Notify(_ context.Context, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type env struct {
	engine   *Engine
	repo     *store.Repository
	events   *recorder
	now      time.Time
	family   *model.Family
	guardian *model.Member
	kid      *model.Member
}

func (e *env) setNow(t time.Time) { e.now = t }

func setup(t *testing.T) *env {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		repo:   store.NewRepository(db),
		events: &recorder{},
		now:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.engine = NewEngine(e.repo, e.events, logger, Options{
		Location:    time.UTC,
		ReadRetries: 1,
		Now:         func() time.Time { return e.now },
		Pick:        func(n int) int { return n - 1 },
	})

	ctx := context.Background()
	e.family, e.guardian, err = e.engine.CreateFamily(ctx, "Smith", "Mom")
	require.NoError(t, err)
	e.kid, err = e.engine.AddMember(ctx, e.guardian.ID, "Ava", model.RoleParticipant)
	require.NoError(t, err)
	return e
}

func (e *env) template(t *testing.T, in model.TemplateInput) *model.TaskTemplate {
	t.Helper()
	if in.Category == "" {
		in.Category = model.CategoryCleaning
	}
	if in.Schedule == "" {
		in.Schedule = model.ScheduleOneTime
	}
	tmpl, err := e.engine.CreateTemplate(context.Background(), e.guardian.ID, in)
	require.NoError(t, err)
	return tmpl
}

func (e *env) total(t *testing.T, memberID int64) int {
	t.Helper()
	total, err := e.repo.Ledger.TotalFor(context.Background(), memberID)
	require.NoError(t, err)
	return total
}

func TestMakeBedEndToEnd(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	dad, err := e.engine.AddMember(ctx, e.guardian.ID, "Dad", model.RoleGuardian)
	require.NoError(t, err)
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, inst.Status)

	pending, err := e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingApproval, pending.Status)
	require.Equal(t, e.kid.ID, *pending.RequestedBy)

	approved, err := e.engine.Decide(ctx, dad.ID, inst.ID, model.DecisionApprove, "")
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, approved.Status)
	require.NotNil(t, approved.CompletedAt)
	require.Nil(t, approved.RequestedBy)

	entries, err := e.repo.Ledger.ListByMember(ctx, e.kid.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 5, entries[0].Delta)
	require.Equal(t, model.ReasonTaskCompletion, entries[0].Reason)
	require.Equal(t, inst.ID, *entries[0].TaskInstanceID)
	require.Equal(t, 5, e.total(t, e.kid.ID))

	records, err := e.engine.ListApprovals(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, dad.ID, records[0].ApproverID)

	require.Equal(t, []model.EventType{
		model.EventTaskAssigned,
		model.EventTaskPending,
		model.EventTaskApproved,
		model.EventStarsChanged,
	}, e.events.types())
}

func TestLoneGuardianAutoApproves(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Dishes", Stars: 3})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.guardian.ID, time.Time{})
	require.NoError(t, err)

	got, err := e.engine.RequestCompletion(ctx, e.guardian.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, got.Status)
	require.Equal(t, 3, e.total(t, e.guardian.ID))
	require.NotContains(t, e.events.types(), model.EventTaskPending)

	records, err := e.engine.ListApprovals(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, model.ReasonAutoApproved, records[0].Reason)
}

func TestGuardianWaitsWhenFamilyHasTwoGuardians(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	dad, err := e.engine.AddMember(ctx, e.guardian.ID, "Dad", model.RoleGuardian)
	require.NoError(t, err)
	tmpl := e.template(t, model.TemplateInput{Title: "Dishes", Stars: 3})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.guardian.ID, time.Time{})
	require.NoError(t, err)
	got, err := e.engine.RequestCompletion(ctx, e.guardian.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingApproval, got.Status)
	require.Equal(t, 0, e.total(t, e.guardian.ID))

	// The assignee may not approve their own request.
	_, err = e.engine.Approve(ctx, e.guardian.ID, inst.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = e.engine.Approve(ctx, dad.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, 3, e.total(t, e.guardian.ID))
}

func TestParticipantAlwaysWaits(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Homework", Category: model.CategoryLearning, Stars: 2})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	got, err := e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingApproval, got.Status)

	// Participants cannot decide.
	_, err = e.engine.Approve(ctx, e.kid.ID, inst.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = e.engine.Approve(ctx, e.guardian.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, 2, e.total(t, e.kid.ID))
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	dad, err := e.engine.AddMember(ctx, e.guardian.ID, "Dad", model.RoleGuardian)
	require.NoError(t, err)
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, approver := range []int64{e.guardian.ID, dad.ID} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := e.engine.Approve(ctx, id, inst.ID)
			errs <- err
		}(approver)
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrAlreadyApproved):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, already)

	entries, err := e.repo.Ledger.ListByMember(ctx, e.kid.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 5, e.total(t, e.kid.ID))
}

func TestApproveTwiceIsAlreadyApproved(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.NoError(t, err)
	_, err = e.engine.Approve(ctx, e.guardian.ID, inst.ID)
	require.NoError(t, err)

	_, err = e.engine.Approve(ctx, e.guardian.ID, inst.ID)
	require.ErrorIs(t, err, model.ErrAlreadyApproved)
	require.Equal(t, 5, e.total(t, e.kid.ID))
}

func TestRejectRoundTrip(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)

	// Rejecting an open instance is a state error.
	_, err = e.engine.Reject(ctx, e.guardian.ID, inst.ID, "")
	var se *model.StateError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, model.ErrInvalidState)

	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.NoError(t, err)
	back, err := e.engine.Reject(ctx, e.guardian.ID, inst.ID, "still messy")
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, back.Status)
	require.Nil(t, back.RequestedBy)
	require.Nil(t, back.RequestedAt)

	stored, err := e.repo.Instances.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, inst.Status, stored.Status)
	require.Equal(t, inst.AssigneeID, stored.AssigneeID)
	require.Equal(t, inst.DueAt.Unix(), stored.DueAt.Unix())
	require.Nil(t, stored.RequestedBy)
	require.Nil(t, stored.CompletedAt)
	require.Equal(t, 0, e.total(t, e.kid.ID))

	records, err := e.engine.ListApprovals(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, model.DecisionReject, records[0].Decision)
	require.Equal(t, "still messy", records[0].Reason)

	// The instance can be requested again after a rejection.
	again, err := e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingApproval, again.Status)
}

func TestRequestCompletionOnlyFromOpen(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.NoError(t, err)

	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.ErrorIs(t, err, model.ErrInvalidState)
}

func TestOtherParticipantCannotRequest(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sib, err := e.engine.AddMember(ctx, e.guardian.ID, "Ben", model.RoleParticipant)
	require.NoError(t, err)
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	_, err = e.engine.RequestCompletion(ctx, sib.ID, inst.ID)
	require.ErrorIs(t, err, model.ErrForbidden)

	// A guardian may request on the assignee's behalf.
	got, err := e.engine.RequestCompletion(ctx, e.guardian.ID, inst.ID)
	require.NoError(t, err)
	require.Equal(t, e.guardian.ID, *got.RequestedBy)
}

func TestBulkClearOverdueWritesNoLedger(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	yesterday := e.now.AddDate(0, 0, -1)
	var ids []int64
	for i := 0; i < 3; i++ {
		inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, yesterday)
		require.NoError(t, err)
		ids = append(ids, inst.ID)
	}
	current, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)

	_, err = e.engine.BulkClearOverdue(ctx, e.kid.ID, ids)
	require.ErrorIs(t, err, model.ErrForbidden)

	res, err := e.engine.BulkClearOverdue(ctx, e.guardian.ID, append(ids, current.ID, 9999))
	require.NoError(t, err)
	require.ElementsMatch(t, ids, res.Cleared)
	require.ElementsMatch(t, []int64{current.ID, 9999}, res.Skipped)

	for _, id := range ids {
		inst, err := e.repo.Instances.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.StatusApproved, inst.Status)
		require.Equal(t, e.guardian.ID, *inst.ClearedBy)
	}
	entries, err := e.repo.Ledger.ListByMember(ctx, e.kid.ID, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExpireWindow(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	window := 15
	tmpl := e.template(t, model.TemplateInput{
		Title:             "Quick tidy",
		Stars:             2,
		Schedule:          model.ScheduleTimeSensitive,
		TimeWindowMinutes: &window,
	})

	due := e.now
	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, due)
	require.NoError(t, err)
	require.NotNil(t, inst.ExpiresAt)
	require.True(t, inst.ExpiresAt.Equal(due.Add(15*time.Minute)))

	_, err = e.engine.Expire(ctx, inst.ID, due.Add(14*time.Minute))
	require.ErrorIs(t, err, model.ErrInvalidState)

	got, err := e.engine.Expire(ctx, inst.ID, due.Add(16*time.Minute))
	require.NoError(t, err)
	require.Equal(t, model.StatusExpired, got.Status)

	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.ErrorIs(t, err, model.ErrInvalidState)
	require.Equal(t, 0, e.total(t, e.kid.ID))
}

func TestPendingGuardianTaskSurvivesCoGuardianRemoval(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	dad, err := e.engine.AddMember(ctx, e.guardian.ID, "Dad", model.RoleGuardian)
	require.NoError(t, err)
	tmpl := e.template(t, model.TemplateInput{Title: "Laundry", Stars: 4})

	first, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.guardian.ID, time.Time{})
	require.NoError(t, err)
	second, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.guardian.ID, time.Time{})
	require.NoError(t, err)
	for _, id := range []int64{first.ID, second.ID} {
		got, err := e.engine.RequestCompletion(ctx, e.guardian.ID, id)
		require.NoError(t, err)
		require.Equal(t, model.StatusPendingApproval, got.Status)
	}

	require.NoError(t, e.engine.RemoveMember(ctx, e.guardian.ID, dad.ID))

	// Now the only guardian, Mom may rule on her own pending tasks.
	got, err := e.engine.Reject(ctx, e.guardian.ID, first.ID, "redo")
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, got.Status)

	got, err = e.engine.Approve(ctx, e.guardian.ID, second.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, got.Status)
	require.Equal(t, 4, e.total(t, e.guardian.ID))

	// A fresh request on the rejected task auto-approves.
	got, err = e.engine.RequestCompletion(ctx, e.guardian.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, got.Status)
	require.Equal(t, 8, e.total(t, e.guardian.ID))
}

func TestLapsedWindowIsNotPaid(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	window := 15
	tmpl := e.template(t, model.TemplateInput{
		Title:             "Feed the cat",
		Category:          model.CategoryPersonal,
		Stars:             2,
		Schedule:          model.ScheduleTimeSensitive,
		TimeWindowMinutes: &window,
	})

	pendingInst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, e.now)
	require.NoError(t, err)
	openInst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, e.now)
	require.NoError(t, err)
	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, pendingInst.ID)
	require.NoError(t, err)

	// No sweep has run, but the window closed.
	e.setNow(e.now.Add(16 * time.Minute))

	_, err = e.engine.Approve(ctx, e.guardian.ID, pendingInst.ID)
	require.ErrorIs(t, err, model.ErrInvalidState)
	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, openInst.ID)
	require.ErrorIs(t, err, model.ErrInvalidState)

	for _, id := range []int64{pendingInst.ID, openInst.ID} {
		view, err := e.engine.GetInstance(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.StatusExpired, view.Status)
		require.Equal(t, model.ClassExpired, view.Classification)
	}
	require.Equal(t, 0, e.total(t, e.kid.ID))
	require.Contains(t, e.events.types(), model.EventTaskExpired)
}

func TestAssignValidation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	_, err := e.engine.Assign(ctx, e.guardian.ID, 9999, e.kid.ID, time.Time{})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, 9999, time.Time{})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = e.engine.Assign(ctx, e.kid.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = e.engine.SetTemplateEnabled(ctx, e.kid.ID, tmpl.ID, false)
	require.NoError(t, err)
	_, err = e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = e.engine.SetTemplateEnabled(ctx, e.kid.ID, tmpl.ID, true)
	require.NoError(t, err)
	_, err = e.engine.ArchiveTemplate(ctx, e.guardian.ID, tmpl.ID)
	require.NoError(t, err)
	_, err = e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestAssignRecurringOncePerDay(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Feed cat", Stars: 1, Schedule: model.ScheduleRecurringDaily})

	_, err := e.engine.AssignRecurring(ctx, *tmpl, e.kid.ID, e.guardian.ID, e.now)
	require.NoError(t, err)
	_, err = e.engine.AssignRecurring(ctx, *tmpl, e.kid.ID, e.guardian.ID, e.now.Add(time.Hour))
	require.ErrorIs(t, err, model.ErrDuplicateInstance)

	_, err = e.engine.AssignRecurring(ctx, *tmpl, e.kid.ID, e.guardian.ID, e.now.AddDate(0, 0, 1))
	require.NoError(t, err)
}

func TestAssignRandomPicksAssignable(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.engine.AssignRandom(ctx, e.guardian.ID, e.kid.ID, time.Time{})
	require.ErrorIs(t, err, model.ErrValidation)

	e.template(t, model.TemplateInput{Title: "A", Stars: 1})
	b := e.template(t, model.TemplateInput{Title: "B", Stars: 1})

	inst, err := e.engine.AssignRandom(ctx, e.guardian.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, b.ID, inst.TemplateID)

	_, err = e.engine.AssignRandom(ctx, e.kid.ID, e.kid.ID, time.Time{})
	require.ErrorIs(t, err, model.ErrForbidden)
}

func TestTemplateRegistry(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.engine.CreateTemplate(ctx, e.kid.ID, model.TemplateInput{
		Title: "Candy", Category: model.CategoryPersonal, Stars: 100, Schedule: model.ScheduleOneTime,
	})
	require.ErrorIs(t, err, model.ErrForbidden)

	window := 10
	bad := []model.TemplateInput{
		{Title: "", Category: model.CategoryCleaning, Stars: 1, Schedule: model.ScheduleOneTime},
		{Title: "x", Category: "chores", Stars: 1, Schedule: model.ScheduleOneTime},
		{Title: "x", Category: model.CategoryCleaning, Stars: 0, Schedule: model.ScheduleOneTime},
		{Title: "x", Category: model.CategoryCleaning, Stars: 1, Schedule: "weekly"},
		{Title: "x", Category: model.CategoryCleaning, Stars: 1, Schedule: model.ScheduleTimeSensitive},
		{Title: "x", Category: model.CategoryCleaning, Stars: 1, Schedule: model.ScheduleOneTime, TimeWindowMinutes: &window},
	}
	for _, in := range bad {
		_, err := e.engine.CreateTemplate(ctx, e.guardian.ID, in)
		require.ErrorIs(t, err, model.ErrValidation, "input %+v", in)
	}

	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})
	updated, err := e.engine.UpdateTemplate(ctx, e.guardian.ID, tmpl.ID, model.TemplateInput{
		Title: "Make bed nicely", Category: model.CategoryCleaning, Stars: 6, Schedule: model.ScheduleOneTime,
	})
	require.NoError(t, err)
	require.Equal(t, 6, updated.Stars)

	_, err = e.engine.UpdateTemplate(ctx, e.kid.ID, tmpl.ID, model.TemplateInput{
		Title: "x", Category: model.CategoryCleaning, Stars: 50, Schedule: model.ScheduleOneTime,
	})
	require.ErrorIs(t, err, model.ErrForbidden)

	_, err = e.engine.ArchiveTemplate(ctx, e.guardian.ID, tmpl.ID)
	require.NoError(t, err)
	again, err := e.engine.ArchiveTemplate(ctx, e.guardian.ID, tmpl.ID)
	require.NoError(t, err)
	require.True(t, again.Archived)

	_, err = e.engine.UpdateTemplate(ctx, e.guardian.ID, tmpl.ID, model.TemplateInput{
		Title: "x", Category: model.CategoryCleaning, Stars: 1, Schedule: model.ScheduleOneTime,
	})
	require.ErrorIs(t, err, model.ErrInvalidState)

	visible, err := e.engine.ListTemplates(ctx, e.family.ID, false)
	require.NoError(t, err)
	require.Empty(t, visible)
	all, err := e.engine.ListTemplates(ctx, e.family.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRemovedMemberLosesAccess(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})
	inst, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)

	err = e.engine.RemoveMember(ctx, e.guardian.ID, e.guardian.ID)
	require.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, e.engine.RemoveMember(ctx, e.guardian.ID, e.kid.ID))
	_, err = e.engine.RequestCompletion(ctx, e.kid.ID, inst.ID)
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.ErrorIs(t, err, model.ErrValidation)

	// History stays resolvable.
	got, err := e.engine.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, "Make bed", got.TemplateTitle)
}

func TestPINAuthentication(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	m, err := e.engine.Authenticate(ctx, e.kid.ID, "")
	require.NoError(t, err)
	require.Equal(t, e.kid.ID, m.ID)

	require.ErrorIs(t, e.engine.SetPIN(ctx, e.kid.ID, e.kid.ID, "12a4"), model.ErrValidation)
	require.NoError(t, e.engine.SetPIN(ctx, e.kid.ID, e.kid.ID, "1234"))

	_, err = e.engine.Authenticate(ctx, e.kid.ID, "")
	require.ErrorIs(t, err, model.ErrForbidden)
	_, err = e.engine.Authenticate(ctx, e.kid.ID, "4321")
	require.ErrorIs(t, err, model.ErrForbidden)
	m, err = e.engine.Authenticate(ctx, e.kid.ID, "1234")
	require.NoError(t, err)
	require.True(t, m.HasPIN)

	// Participants cannot reset someone else's PIN.
	require.ErrorIs(t, e.engine.SetPIN(ctx, e.kid.ID, e.guardian.ID, "0000"), model.ErrForbidden)
	require.NoError(t, e.engine.SetPIN(ctx, e.guardian.ID, e.kid.ID, "5678"))

	_, err = e.engine.Authenticate(ctx, 9999, "")
	require.ErrorIs(t, err, model.ErrForbidden)
}

func TestListInstancesClassifies(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t, model.TemplateInput{Title: "Make bed", Stars: 5})

	_, err := e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, e.now.AddDate(0, 0, -2))
	require.NoError(t, err)
	_, err = e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, time.Time{})
	require.NoError(t, err)
	_, err = e.engine.Assign(ctx, e.guardian.ID, tmpl.ID, e.kid.ID, e.now.AddDate(0, 0, 3))
	require.NoError(t, err)

	views, err := e.engine.ListInstances(ctx, model.InstanceFilter{FamilyID: e.family.ID, AssigneeID: e.kid.ID})
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, model.ClassOverdue, views[0].Classification)
	require.Equal(t, model.ClassDueToday, views[1].Classification)
	require.Equal(t, model.ClassUpcoming, views[2].Classification)
	require.Equal(t, "Make bed", views[0].TemplateTitle)
}
