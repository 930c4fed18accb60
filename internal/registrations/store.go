package registrations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/evenia/backend/internal/models"
)

// MutateFunc changes a locked registration in memory. Returning an error aborts
// the mutation and leaves the stored row untouched.
type MutateFunc func(reg *models.Registration) error

// Store persists registrations. Every method wraps driver failures with ErrPersistence.
// Returned registrations have User and Event loaded.
type Store interface {
	// Create inserts reg unless the event already holds capacity active
	// registrations (ErrEventFull, capacity 0 means unlimited) or the user
	// already has an active one for the event (ErrAlreadyRegistered).
	Create(ctx context.Context, reg *models.Registration, capacity int) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByCode(ctx context.Context, code string) (*models.Registration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, status models.RegistrationStatus) ([]models.Registration, error)
	Stats(ctx context.Context, eventID uuid.UUID) (*models.RegistrationStats, error)

	// AssignCode writes code only if the registration has none yet and returns
	// the code stored after the call. A collision returns ErrCodeTaken.
	AssignCode(ctx context.Context, id uuid.UUID, code string) (string, error)

	// MutateByID and MutateByCode lock the row, apply fn and write status and
	// attended_at back in a single statement.
	MutateByID(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Registration, error)
	MutateByCode(ctx context.Context, code string, fn MutateFunc) (*models.Registration, error)

	// DueReminders lists active registrations of published events starting in
	// [from, to) that have no reminder email logged yet.
	DueReminders(ctx context.Context, from, to time.Time) ([]models.Registration, error)
}

// EventLookup resolves events for registration.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}
