package model

import "time"

type Role string

const (
	RoleGuardian    Role = "guardian"
	RoleParticipant Role = "participant"
)

func (r Role) Valid() bool {
	return r == RoleGuardian || r == RoleParticipant
}

// Member is a family participant. Members are soft-removed so that their
// ledger and instance history stays resolvable.
type Member struct {
	ID        int64      `json:"id"`
	FamilyID  int64      `json:"family_id"`
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	HasPIN    bool       `json:"has_pin"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (m Member) IsGuardian() bool {
	return m.Role == RoleGuardian
}

func (m Member) Active() bool {
	return m.RemovedAt == nil
}

// Manages reports whether m may act as a guardian over familyID.
func (m Member) Manages(familyID int64) bool {
	return m.Active() && m.IsGuardian() && m.FamilyID == familyID
}
