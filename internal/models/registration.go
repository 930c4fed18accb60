package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusAttended  RegistrationStatus = "attended"
	StatusCanceled  RegistrationStatus = "canceled"
)

// Valid reports whether s is one of the known states.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusAttended, StatusCanceled:
		return true
	}
	return false
}

// IsActive holds for pending and confirmed registrations.
func (s RegistrationStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsTerminal holds for attended and canceled registrations.
func (s RegistrationStatus) IsTerminal() bool {
	return s == StatusAttended || s == StatusCanceled
}

// Registration links a user to an event.
// QRCode is the check-in lookup key and is never serialized with the record.
type Registration struct {
	ID         uuid.UUID          `json:"id"`
	UserID     uuid.UUID          `json:"user_id"`
	EventID    uuid.UUID          `json:"event_id"`
	Status     RegistrationStatus `json:"status"`
	QRCode     string             `json:"-"`
	Price      decimal.Decimal    `json:"price"`
	AttendedAt *time.Time         `json:"attended_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`

	User  *UserSummary `json:"user,omitempty"`
	Event *Event       `json:"event,omitempty"`
}

// IsActive is a shorthand for r.Status.IsActive().
func (r *Registration) IsActive() bool {
	return r.Status.IsActive()
}

// RegistrationStats aggregates registrations of one event.
type RegistrationStats struct {
	Total     int             `json:"total"`
	Pending   int             `json:"pending"`
	Confirmed int             `json:"confirmed"`
	Attended  int             `json:"attended"`
	Canceled  int             `json:"canceled"`
	Revenue   decimal.Decimal `json:"revenue"`
}
