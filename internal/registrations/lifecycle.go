package registrations

import (
	"fmt"
	"time"

	"github.com/evenia/backend/internal/models"
)

// transitions lists every legal move. Terminal states have no entry.
var transitions = map[models.RegistrationStatus][]models.RegistrationStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCanceled, models.StatusAttended},
	models.StatusConfirmed: {models.StatusCanceled, models.StatusAttended},
}

// CanTransition reports whether from -> to exists, ignoring guards.
func CanTransition(from, to models.RegistrationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func invalid(reg *models.Registration, to models.RegistrationStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, reg.Status, to)
}

// Confirm moves a pending registration to confirmed.
func Confirm(reg *models.Registration) error {
	if !CanTransition(reg.Status, models.StatusConfirmed) {
		return invalid(reg, models.StatusConfirmed)
	}
	reg.Status = models.StatusConfirmed
	return nil
}

// Cancel moves an active registration to canceled while its event is still upcoming.
// reg.Event must be loaded.
func Cancel(reg *models.Registration, now time.Time) error {
	if !CanTransition(reg.Status, models.StatusCanceled) {
		return invalid(reg, models.StatusCanceled)
	}
	if !reg.Event.IsUpcoming(now) {
		return fmt.Errorf("%w: event already started", ErrInvalidTransition)
	}
	reg.Status = models.StatusCanceled
	return nil
}

// Attend marks an active registration as attended once its event has started.
// Status and AttendedAt change together or not at all. reg.Event must be loaded.
func Attend(reg *models.Registration, now time.Time) error {
	if !CanTransition(reg.Status, models.StatusAttended) {
		return invalid(reg, models.StatusAttended)
	}
	if reg.Event.IsUpcoming(now) {
		return ErrTooEarly
	}
	at := now
	reg.Status = models.StatusAttended
	reg.AttendedAt = &at
	return nil
}
