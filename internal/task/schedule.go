package task

import (
	"time"

	"github.com/dukerupert/chorestars/internal/model"
)

// ExpiresAt computes the expiry deadline for an instance of tmpl due at dueAt.
// Only time_sensitive templates carry one.
func ExpiresAt(tmpl model.TaskTemplate, dueAt time.Time) *time.Time {
	if tmpl.Schedule != model.ScheduleTimeSensitive || tmpl.TimeWindowMinutes == nil {
		return nil
	}
	exp := dueAt.Add(time.Duration(*tmpl.TimeWindowMinutes) * time.Minute)
	return &exp
}

// IsExpired reports whether an unresolved instance has passed its expiry.
func IsExpired(inst model.TaskInstance, now time.Time) bool {
	if inst.Status == model.StatusExpired {
		return true
	}
	if inst.Status.Terminal() || inst.ExpiresAt == nil {
		return false
	}
	return now.After(*inst.ExpiresAt)
}

// IsOverdue reports whether an unresolved instance was due before today.
func IsOverdue(inst model.TaskInstance, now time.Time) bool {
	if inst.Status.Terminal() {
		return false
	}
	return inst.DueAt.Before(StartOfDay(now))
}

// Classify groups an instance relative to now. Expiry supersedes the due
// date; otherwise overdue, then due today, then upcoming.
func Classify(inst model.TaskInstance, now time.Time) model.Classification {
	if IsExpired(inst, now) {
		return model.ClassExpired
	}
	if IsOverdue(inst, now) {
		return model.ClassOverdue
	}
	today := StartOfDay(now)
	due := inst.DueAt.In(now.Location())
	if !due.Before(today) && due.Before(today.AddDate(0, 0, 1)) {
		return model.ClassDueToday
	}
	return model.ClassUpcoming
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last second of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// DayKey identifies the calendar day of t in its own location.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
