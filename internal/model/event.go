package model

type EventType string

const (
	EventTaskAssigned   EventType = "task_assigned"
	EventTaskPending    EventType = "task_pending"
	EventTaskApproved   EventType = "task_approved"
	EventTaskRejected   EventType = "task_rejected"
	EventTaskExpired    EventType = "task_expired"
	EventTaskCleared    EventType = "task_cleared"
	EventStarsChanged   EventType = "stars_changed"
	EventRewardRedeemed EventType = "reward_redeemed"
)

// Event describes a committed change that devices and members may want to
// hear about. Delivery is best-effort.
type Event struct {
	Type     EventType
	FamilyID int64
	EntityID int64
	MemberID int64
	Title    string
	Stars    int
}
