package registrations

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown codes and codes of registrations that are no longer active.
	ErrNotFound = errors.New("registration not found")
	// ErrTooEarly is returned by check-in before the event has started.
	ErrTooEarly = errors.New("event has not started yet")
	// ErrInvalidTransition is returned when the lifecycle has no such move from the current state.
	ErrInvalidTransition = errors.New("invalid registration transition")
	// ErrPersistence wraps every store failure.
	ErrPersistence = errors.New("registration store failure")

	ErrEventNotFound      = errors.New("event not found")
	ErrEventFull          = errors.New("event is full")
	ErrAlreadyRegistered  = errors.New("user already holds an active registration for this event")
	ErrRegistrationClosed = errors.New("registrations are closed for this event")

	// ErrCodeTaken is returned by Store.AssignCode when the code collides with another registration.
	ErrCodeTaken = errors.New("check-in code already taken")
)

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
