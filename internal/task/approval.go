package task

import "github.com/dukerupert/chorestars/internal/model"

// RequiresApproval decides whether a completion request must wait for a
// guardian. Only a guardian who is the family's sole guardian may complete
// their own task without review.
func RequiresApproval(assignee model.Member, guardianCount int) bool {
	return !(assignee.IsGuardian() && guardianCount == 1)
}

// CanDecide reports whether approver may rule on a pending instance. The
// approver must be an active guardian of the same family. Guardians may
// not rule on their own tasks unless they are the family's only guardian,
// which is the same rule that lets a lone guardian skip review.
func CanDecide(approver model.Member, inst model.TaskInstance, guardianCount int) bool {
	if !approver.Active() || !approver.IsGuardian() || approver.FamilyID != inst.FamilyID {
		return false
	}
	return approver.ID != inst.AssigneeID || !RequiresApproval(approver, guardianCount)
}

// CanRequest reports whether requester may ask for completion of inst: the
// assignee themselves or any guardian of the family.
func CanRequest(requester model.Member, inst model.TaskInstance) bool {
	if !requester.Active() || requester.FamilyID != inst.FamilyID {
		return false
	}
	return requester.ID == inst.AssigneeID || requester.IsGuardian()
}
