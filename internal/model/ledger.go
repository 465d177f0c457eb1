package model

import "time"

const (
	ReasonTaskCompletion   = "task_completion"
	ReasonBonus            = "bonus"
	ReasonManualDeduction  = "manual_deduction"
	ReasonRewardRedemption = "reward_redemption"
)

// StarsLedgerEntry is an immutable signed star transaction. A member's total
// is always the sum of Delta over their entries.
type StarsLedgerEntry struct {
	ID             int64     `json:"id"`
	MemberID       int64     `json:"member_id"`
	Delta          int       `json:"delta"`
	Reason         string    `json:"reason"`
	CreatedBy      int64     `json:"created_by"`
	TaskInstanceID *int64    `json:"task_instance_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type StarBalance struct {
	MemberID   int64  `json:"member_id"`
	MemberName string `json:"member_name"`
	Earned     int    `json:"earned"`
	Spent      int    `json:"spent"`
	Total      int    `json:"total"`
}
