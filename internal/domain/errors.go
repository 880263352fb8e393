package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with existing data.
	ErrConflict = errors.New("conflict")
	// ErrVersionConflict is returned when an optimistic-concurrency check fails.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrForbidden is returned when the actor lacks authority for an action.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports a request field that failed validation. It is
// always raised before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ActorRole is the authority of the caller.
type ActorRole string

const (
	RoleTenant ActorRole = "tenant"
	RoleOwner  ActorRole = "owner"
	RoleAdmin  ActorRole = "admin"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID            string
	Role          ActorRole
	Source        string
	CorrelationID string
}

// System is the actor used by background workers.
var System = Actor{ID: "system", Role: RoleAdmin, Source: "system"}

// CanVerify reports whether the actor may verify or reject payments.
func (a Actor) CanVerify() bool {
	return a.Role == RoleOwner || a.Role == RoleAdmin
}

// CanSubmit reports whether the actor may submit payments.
func (a Actor) CanSubmit() bool {
	return a.Role == RoleTenant || a.Role == RoleAdmin
}
