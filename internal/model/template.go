package model

import "time"

type Category string

const (
	CategoryCleaning Category = "cleaning"
	CategoryKitchen  Category = "kitchen"
	CategoryLearning Category = "learning"
	CategoryKindness Category = "kindness"
	CategoryPrayer   Category = "prayer"
	CategoryOutdoor  Category = "outdoor"
	CategoryPersonal Category = "personal"
)

var Categories = []Category{
	CategoryCleaning, CategoryKitchen, CategoryLearning, CategoryKindness,
	CategoryPrayer, CategoryOutdoor, CategoryPersonal,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

type ScheduleType string

const (
	ScheduleOneTime        ScheduleType = "one_time"
	ScheduleRecurringDaily ScheduleType = "recurring_daily"
	ScheduleTimeSensitive  ScheduleType = "time_sensitive"
)

func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleOneTime, ScheduleRecurringDaily, ScheduleTimeSensitive:
		return true
	}
	return false
}

// TaskTemplate is a reusable chore definition. Templates are archived, never
// deleted, so historical instances can still resolve their title and stars.
type TaskTemplate struct {
	ID                int64        `json:"id"`
	FamilyID          int64        `json:"family_id"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Category          Category     `json:"category"`
	Stars             int          `json:"stars"`
	Schedule          ScheduleType `json:"schedule"`
	TimeWindowMinutes *int         `json:"time_window_minutes,omitempty"`
	Enabled           bool         `json:"enabled"`
	Archived          bool         `json:"archived"`
	CreatedBy         int64        `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Assignable reports whether the template may back a new instance.
func (t TaskTemplate) Assignable() bool {
	return t.Enabled && !t.Archived
}

// TemplateInput carries the guardian-editable fields of a template.
type TemplateInput struct {
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Category          Category     `json:"category"`
	Stars             int          `json:"stars"`
	Schedule          ScheduleType `json:"schedule"`
	TimeWindowMinutes *int         `json:"time_window_minutes"`
}
