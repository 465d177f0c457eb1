package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrDuplicateAward    = errors.New("stars already awarded for this task")
	ErrAlreadyApproved   = errors.New("task already approved")
	ErrForbidden         = errors.New("forbidden")
	ErrTransient         = errors.New("temporarily unavailable")
	ErrInsufficientStars = errors.New("insufficient stars")
	ErrDuplicateInstance = errors.New("instance already exists for this day")
)

// StateError reports an operation attempted against an instance whose
// current status does not permit it. It matches ErrInvalidState.
type StateError struct {
	Op         string
	InstanceID int64
	Status     InstanceStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s instance %d: status is %s", e.Op, e.InstanceID, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// Validationf returns an error matching ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
