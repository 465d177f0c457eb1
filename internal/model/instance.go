package model

import "time"

type InstanceStatus string

const (
	StatusOpen            InstanceStatus = "open"
	StatusPendingApproval InstanceStatus = "pending_approval"
	StatusApproved        InstanceStatus = "approved"
	StatusExpired         InstanceStatus = "expired"
)

func (s InstanceStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusPendingApproval, StatusApproved, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s InstanceStatus) Terminal() bool {
	return s == StatusApproved || s == StatusExpired
}

// TaskInstance is one dated assignment of a template to a member.
// RequestedBy and RequestedAt are non-nil exactly while the status is
// pending_approval.
type TaskInstance struct {
	ID          int64          `json:"id"`
	TemplateID  int64          `json:"template_id"`
	FamilyID    int64          `json:"family_id"`
	AssigneeID  int64          `json:"assignee_id"`
	AssignedBy  int64          `json:"assigned_by"`
	Status      InstanceStatus `json:"status"`
	DueAt       time.Time      `json:"due_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	RequestedBy *int64         `json:"requested_by,omitempty"`
	RequestedAt *time.Time     `json:"requested_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	ClearedBy   *int64         `json:"cleared_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Classification string

const (
	ClassOverdue  Classification = "overdue"
	ClassDueToday Classification = "due_today"
	ClassUpcoming Classification = "upcoming"
	ClassExpired  Classification = "expired"
)

// InstanceView pairs an instance with its classification at query time.
type InstanceView struct {
	TaskInstance
	TemplateTitle  string         `json:"template_title"`
	Stars          int            `json:"stars"`
	Classification Classification `json:"classification"`
}

// InstanceFilter narrows instance listings. Zero values are ignored.
type InstanceFilter struct {
	FamilyID   int64
	AssigneeID int64
	Statuses   []InstanceStatus
	DueFrom    *time.Time
	DueTo      *time.Time
}
