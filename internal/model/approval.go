package model

import "time"

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

const ReasonAutoApproved = "auto_approved"

type ApprovalRecord struct {
	ID         int64     `json:"id"`
	InstanceID int64     `json:"instance_id"`
	ApproverID int64     `json:"approver_id"`
	Decision   Decision  `json:"decision"`
	Reason     string    `json:"reason,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}
