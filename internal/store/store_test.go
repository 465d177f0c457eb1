package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/chorestars/internal/database"
	"github.com/dukerupert/chorestars/internal/model"
)

type fixture struct {
	repo     *Repository
	family   *model.Family
	guardian *model.Member
	kid      *model.Member
	tmpl     *model.TaskTemplate
}

func setupTestRepo(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	repo := NewRepository(db)

	family, err := repo.Families.Create(ctx, "Smith")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	guardian, err := repo.Members.Create(ctx, family.ID, "Mom", model.RoleGuardian)
	if err != nil {
		t.Fatalf("create guardian: %v", err)
	}
	kid, err := repo.Members.Create(ctx, family.ID, "Ava", model.RoleParticipant)
	if err != nil {
		t.Fatalf("create kid: %v", err)
	}
	tmpl, err := repo.Templates.Create(ctx, family.ID, guardian.ID, model.TemplateInput{
		Title:    "Make bed",
		Category: model.CategoryCleaning,
		Stars:    3,
		Schedule: model.ScheduleRecurringDaily,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return fixture{repo: repo, family: family, guardian: guardian, kid: kid, tmpl: tmpl}
}

func (f fixture) newInstance(t *testing.T, day string) *model.TaskInstance {
	t.Helper()
	inst, err := f.repo.Instances.Create(context.Background(), model.TaskInstance{
		TemplateID: f.tmpl.ID,
		FamilyID:   f.family.ID,
		AssigneeID: f.kid.ID,
		AssignedBy: f.guardian.ID,
		DueAt:      time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC),
	}, day)
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return inst
}

func TestMemberCRUD(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	got, err := f.repo.Members.GetByID(ctx, f.kid.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got.Name != "Ava" {
		t.Errorf("name = %q, want %q", got.Name, "Ava")
	}
	if got.HasPIN {
		t.Error("expected no pin")
	}

	if err := f.repo.Members.SetPIN(ctx, f.kid.ID, "hash"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	hash, err := f.repo.Members.GetPINHash(ctx, f.kid.ID)
	if err != nil {
		t.Fatalf("get pin: %v", err)
	}
	if hash != "hash" {
		t.Errorf("pin hash = %q, want %q", hash, "hash")
	}

	n, err := f.repo.Members.CountGuardians(ctx, f.family.ID)
	if err != nil {
		t.Fatalf("count guardians: %v", err)
	}
	if n != 1 {
		t.Errorf("guardians = %d, want 1", n)
	}

	if err := f.repo.Members.Remove(ctx, f.guardian.ID, time.Now()); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	n, _ = f.repo.Members.CountGuardians(ctx, f.family.ID)
	if n != 0 {
		t.Errorf("guardians after remove = %d, want 0", n)
	}
	members, err := f.repo.Members.ListByFamily(ctx, f.family.ID, false)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("active members = %d, want 1", len(members))
	}

	missing, err := f.repo.Members.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing member")
	}
}

func TestTemplateLifecycle(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	window := 15
	ts, err := f.repo.Templates.Create(ctx, f.family.ID, f.guardian.ID, model.TemplateInput{
		Title:             "Quick tidy",
		Category:          model.CategoryCleaning,
		Stars:             2,
		Schedule:          model.ScheduleTimeSensitive,
		TimeWindowMinutes: &window,
	})
	if err != nil {
		t.Fatalf("create time-sensitive template: %v", err)
	}
	if ts.TimeWindowMinutes == nil || *ts.TimeWindowMinutes != 15 {
		t.Errorf("window = %v, want 15", ts.TimeWindowMinutes)
	}

	if _, err := f.repo.Templates.SetEnabled(ctx, ts.ID, false, now); err != nil {
		t.Fatalf("disable: %v", err)
	}
	assignable, err := f.repo.Templates.ListAssignable(ctx, f.family.ID)
	if err != nil {
		t.Fatalf("list assignable: %v", err)
	}
	if len(assignable) != 1 || assignable[0].ID != f.tmpl.ID {
		t.Errorf("assignable = %+v, want only %d", assignable, f.tmpl.ID)
	}

	if _, err := f.repo.Templates.Archive(ctx, f.tmpl.ID, now); err != nil {
		t.Fatalf("archive: %v", err)
	}
	recurring, err := f.repo.Templates.ListRecurring(ctx)
	if err != nil {
		t.Fatalf("list recurring: %v", err)
	}
	if len(recurring) != 0 {
		t.Errorf("recurring = %d, want 0 after archive", len(recurring))
	}

	all, _ := f.repo.Templates.ListByFamily(ctx, f.family.ID, true)
	if len(all) != 2 {
		t.Errorf("all templates = %d, want 2", len(all))
	}
}

func TestInstanceTransition(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	inst := f.newInstance(t, "")

	if inst.Status != model.StatusOpen {
		t.Errorf("status = %q, want %q", inst.Status, model.StatusOpen)
	}

	now := time.Now().UTC()
	next := *inst
	next.Status = model.StatusPendingApproval
	next.RequestedBy = &f.kid.ID
	next.RequestedAt = &now
	next.UpdatedAt = now

	if err := f.repo.Instances.Transition(ctx, model.StatusOpen, next); err != nil {
		t.Fatalf("transition: %v", err)
	}
	// Same expectation again: the row has moved on.
	err := f.repo.Instances.Transition(ctx, model.StatusOpen, next)
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("second transition err = %v, want ErrStaleStatus", err)
	}
	if !errors.Is(err, model.ErrInvalidState) {
		t.Error("ErrStaleStatus should wrap ErrInvalidState")
	}

	got, err := f.repo.Instances.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.Status != model.StatusPendingApproval {
		t.Errorf("status = %q, want %q", got.Status, model.StatusPendingApproval)
	}
	if got.RequestedBy == nil || *got.RequestedBy != f.kid.ID {
		t.Errorf("requested_by = %v, want %d", got.RequestedBy, f.kid.ID)
	}
}

func TestInstancePendingRequiresRequestMetadata(t *testing.T) {
	f := setupTestRepo(t)
	inst := f.newInstance(t, "")

	next := *inst
	next.Status = model.StatusPendingApproval
	next.UpdatedAt = time.Now()
	if err := f.repo.Instances.Transition(context.Background(), model.StatusOpen, next); err == nil {
		t.Fatal("expected check constraint failure for pending without requester")
	}
}

func TestRecurrenceSlotUnique(t *testing.T) {
	f := setupTestRepo(t)
	f.newInstance(t, "2025-03-10")

	_, err := f.repo.Instances.Create(context.Background(), model.TaskInstance{
		TemplateID: f.tmpl.ID,
		FamilyID:   f.family.ID,
		AssigneeID: f.kid.ID,
		AssignedBy: f.guardian.ID,
		DueAt:      time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC),
	}, "2025-03-10")
	if !errors.Is(err, model.ErrDuplicateInstance) {
		t.Fatalf("err = %v, want ErrDuplicateInstance", err)
	}

	// Manual assignments carry no slot and never collide.
	f.newInstance(t, "")
	f.newInstance(t, "")
}

func TestInstanceList(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	a := f.newInstance(t, "")
	f.newInstance(t, "")

	views, err := f.repo.Instances.List(ctx, model.InstanceFilter{FamilyID: f.family.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("len = %d, want 2", len(views))
	}
	if views[0].TemplateTitle != "Make bed" || views[0].Stars != 3 {
		t.Errorf("view = %+v, want Make bed / 3", views[0])
	}

	now := time.Now().UTC()
	next := *a
	next.Status = model.StatusApproved
	next.CompletedAt = &now
	next.UpdatedAt = now
	if err := f.repo.Instances.Transition(ctx, model.StatusOpen, next); err != nil {
		t.Fatalf("approve: %v", err)
	}

	open, err := f.repo.Instances.List(ctx, model.InstanceFilter{
		FamilyID: f.family.ID,
		Statuses: []model.InstanceStatus{model.StatusOpen, model.StatusPendingApproval},
	})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("open = %d, want 1", len(open))
	}

	other, _ := f.repo.Instances.List(ctx, model.InstanceFilter{FamilyID: f.family.ID, AssigneeID: f.guardian.ID})
	if len(other) != 0 {
		t.Errorf("guardian instances = %d, want 0", len(other))
	}
}

func TestListAssignments(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	f.newInstance(t, "2025-03-09")
	f.newInstance(t, "2025-03-10")

	got, err := f.repo.Instances.ListAssignments(ctx, f.tmpl.ID)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("assignments = %d, want 1", len(got))
	}
	if got[0].AssigneeID != f.kid.ID || got[0].AssignedBy != f.guardian.ID {
		t.Errorf("assignment = %+v", got[0])
	}

	f.repo.Members.Remove(ctx, f.kid.ID, time.Now())
	got, _ = f.repo.Instances.ListAssignments(ctx, f.tmpl.ID)
	if len(got) != 0 {
		t.Errorf("assignments after remove = %d, want 0", len(got))
	}
}

func TestLedgerAwardOnce(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	inst := f.newInstance(t, "")

	award := model.StarsLedgerEntry{
		MemberID:       f.kid.ID,
		Delta:          3,
		Reason:         model.ReasonTaskCompletion,
		CreatedBy:      f.guardian.ID,
		TaskInstanceID: &inst.ID,
	}
	if _, err := f.repo.Ledger.Insert(ctx, award); err != nil {
		t.Fatalf("insert award: %v", err)
	}
	if _, err := f.repo.Ledger.Insert(ctx, award); !errors.Is(err, model.ErrDuplicateAward) {
		t.Fatalf("second award err = %v, want ErrDuplicateAward", err)
	}

	total, err := f.repo.Ledger.TotalFor(ctx, f.kid.ID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}

	got, err := f.repo.Ledger.AwardFor(ctx, inst.ID)
	if err != nil {
		t.Fatalf("award for: %v", err)
	}
	if got == nil || got.Delta != 3 {
		t.Errorf("award = %+v, want delta 3", got)
	}
}

func TestLedgerAppendOnly(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	e, err := f.repo.Ledger.Insert(ctx, model.StarsLedgerEntry{
		MemberID: f.kid.ID, Delta: 5, Reason: model.ReasonBonus, CreatedBy: f.guardian.ID,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := f.repo.Ledger.db.ExecContext(ctx, `UPDATE stars_ledger SET delta = 50 WHERE id = ?`, e.ID); err == nil {
		t.Error("expected update to be rejected")
	}
	if _, err := f.repo.Ledger.db.ExecContext(ctx, `DELETE FROM stars_ledger WHERE id = ?`, e.ID); err == nil {
		t.Error("expected delete to be rejected")
	}
	if _, err := f.repo.Ledger.Insert(ctx, model.StarsLedgerEntry{
		MemberID: f.kid.ID, Delta: 0, Reason: model.ReasonBonus, CreatedBy: f.guardian.ID,
	}); err == nil {
		t.Error("expected zero delta to be rejected")
	}
}

func TestLedgerBalancesAndHistory(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	for _, d := range []int{5, 3, -2} {
		reason := model.ReasonBonus
		if d < 0 {
			reason = model.ReasonManualDeduction
		}
		if _, err := f.repo.Ledger.Insert(ctx, model.StarsLedgerEntry{
			MemberID: f.kid.ID, Delta: d, Reason: reason, CreatedBy: f.guardian.ID,
		}); err != nil {
			t.Fatalf("insert %d: %v", d, err)
		}
	}

	balances, err := f.repo.Ledger.Balances(ctx, f.family.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("balances = %d, want 2", len(balances))
	}
	top := balances[0]
	if top.MemberID != f.kid.ID || top.Earned != 8 || top.Spent != 2 || top.Total != 6 {
		t.Errorf("top balance = %+v, want kid 8/2/6", top)
	}
	if balances[1].Total != 0 {
		t.Errorf("guardian total = %d, want 0", balances[1].Total)
	}

	history, err := f.repo.Ledger.ListByMember(ctx, f.kid.ID, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d, want 2", len(history))
	}
	if history[0].Delta != -2 {
		t.Errorf("newest delta = %d, want -2", history[0].Delta)
	}
}

func TestApprovalRecords(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()
	inst := f.newInstance(t, "")

	for _, d := range []model.Decision{model.DecisionReject, model.DecisionApprove} {
		if _, err := f.repo.Approvals.Create(ctx, model.ApprovalRecord{
			InstanceID: inst.ID, ApproverID: f.guardian.ID, Decision: d, DecidedAt: time.Now(),
		}); err != nil {
			t.Fatalf("create approval: %v", err)
		}
	}

	records, err := f.repo.Approvals.ListByInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("list approvals: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Decision != model.DecisionReject {
		t.Errorf("first decision = %q, want %q", records[0].Decision, model.DecisionReject)
	}
}

func TestRewardRedeemOnce(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	r, err := f.repo.Rewards.Create(ctx, f.family.ID, "Ice Cream Trip", "Go get ice cream!", 10)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if r.Status != model.RewardActive {
		t.Errorf("status = %q, want %q", r.Status, model.RewardActive)
	}

	if err := f.repo.Rewards.MarkRedeemed(ctx, r.ID, f.kid.ID, time.Now()); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := f.repo.Rewards.MarkRedeemed(ctx, r.ID, f.kid.ID, time.Now()); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("second redeem err = %v, want ErrStaleStatus", err)
	}

	active, _ := f.repo.Rewards.ListByFamily(ctx, f.family.ID, false)
	if len(active) != 0 {
		t.Errorf("active rewards = %d, want 0", len(active))
	}
	got, _ := f.repo.Rewards.GetByID(ctx, r.ID)
	if got.RedeemedBy == nil || *got.RedeemedBy != f.kid.ID {
		t.Errorf("redeemed_by = %v, want %d", got.RedeemedBy, f.kid.ID)
	}
}

func TestPushSubscriptionUpsert(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	sub := model.PushSubscription{
		MemberID:  f.kid.ID,
		FamilyID:  f.family.ID,
		Endpoint:  "https://push.example.com/sub1",
		P256dhKey: "p256dh-key",
		AuthKey:   "auth-key",
	}
	first, err := f.repo.Push.CreateSubscription(ctx, sub)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	sub.AuthKey = "new-auth"
	second, err := f.repo.Push.CreateSubscription(ctx, sub)
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id = %d, want %d", second.ID, first.ID)
	}
	if second.AuthKey != "new-auth" {
		t.Errorf("auth key = %q, want %q", second.AuthKey, "new-auth")
	}

	subs, err := f.repo.Push.ListByMembers(ctx, []int64{f.kid.ID, f.guardian.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("subs = %d, want 1", len(subs))
	}

	if err := f.repo.Push.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ = f.repo.Push.ListByFamily(ctx, f.family.ID)
	if len(subs) != 0 {
		t.Errorf("subs after delete = %d, want 0", len(subs))
	}
}

func TestInTxRollsBack(t *testing.T) {
	f := setupTestRepo(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := f.repo.InTx(ctx, func(tx *Repository) error {
		if _, err := tx.Ledger.Insert(ctx, model.StarsLedgerEntry{
			MemberID: f.kid.ID, Delta: 7, Reason: model.ReasonBonus, CreatedBy: f.guardian.ID,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	total, _ := f.repo.Ledger.TotalFor(ctx, f.kid.ID)
	if total != 0 {
		t.Errorf("total = %d, want 0 after rollback", total)
	}
}
