package model

import "time"

type RewardStatus string

const (
	RewardActive   RewardStatus = "active"
	RewardRedeemed RewardStatus = "redeemed"
)

type Reward struct {
	ID          int64        `json:"id"`
	FamilyID    int64        `json:"family_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Cost        int          `json:"cost"`
	Status      RewardStatus `json:"status"`
	RedeemedBy  *int64       `json:"redeemed_by,omitempty"`
	RedeemedAt  *time.Time   `json:"redeemed_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
