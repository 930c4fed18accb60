package tickets

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evenia/backend/internal/models"
)

// PayloadVersion is written into every payload as "v".
const PayloadVersion = 1

var (
	// ErrNoCode is returned when a payload is built for a registration without a code.
	ErrNoCode = errors.New("registration has no check-in code")
	// ErrInvalidPayload is returned by Decode for text that is not a ticket payload.
	ErrInvalidPayload = errors.New("invalid ticket payload")
)

// Payload is the data embedded in the ticket QR image.
// Fields are declared in key order so Marshal output is canonical.
// IssuedAt (epoch millis) is informative; check-in never trusts it.
type Payload struct {
	Code           string    `json:"code"`
	EventID        uuid.UUID `json:"eventId"`
	IssuedAt       int64     `json:"issuedAt"`
	RegistrationID uuid.UUID `json:"registrationId"`
	UserID         uuid.UUID `json:"userId"`
	Version        int       `json:"v"`
}

// BuildPayload derives the payload of reg. It never writes anything.
func BuildPayload(reg *models.Registration, issuedAt time.Time) (Payload, error) {
	if reg.QRCode == "" {
		return Payload{}, ErrNoCode
	}
	return Payload{
		Code:           reg.QRCode,
		EventID:        reg.EventID,
		IssuedAt:       issuedAt.UnixMilli(),
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		Version:        PayloadVersion,
	}, nil
}

// Marshal returns the compact text embedded in the QR image.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses text produced by Marshal.
func Decode(text string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Version != PayloadVersion || p.Code == "" {
		return Payload{}, ErrInvalidPayload
	}
	return p, nil
}

// CodeFromScan extracts the check-in code from whatever a scanner read:
// either a full payload or the bare code.
func CodeFromScan(scanned string) string {
	s := strings.TrimSpace(scanned)
	if strings.HasPrefix(s, "{") {
		if p, err := Decode(s); err == nil {
			return p.Code
		}
	}
	return s
}
