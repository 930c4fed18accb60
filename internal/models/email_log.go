package models

import (
	"time"

	"github.com/google/uuid"
)

// Email types sent around a registration.
const (
	EmailTypeRegistrationConfirmation = "registration_confirmation"
	EmailTypeReminder24h              = "reminder_24h"
	EmailTypeCancellation             = "cancellation"
)

// ValidEmailType reports whether t is one of the email types above.
func ValidEmailType(t string) bool {
	switch t {
	case EmailTypeRegistrationConfirmation, EmailTypeReminder24h, EmailTypeCancellation:
		return true
	}
	return false
}

// Delivery states of an EmailLog. A log starts pending and ends sent or failed.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog is one delivery attempt of a registration email.
// EventID and RegistrationID survive as null when the rows are deleted.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	EventID        *uuid.UUID `json:"event_id,omitempty"`
	RegistrationID *uuid.UUID `json:"registration_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
