package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultEventDuration bounds events that have no explicit end.
const DefaultEventDuration = 2 * time.Hour

// Event is something users can register for.
type Event struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	Description     string          `json:"description"`
	DescriptionHTML string          `json:"description_html"`
	Location        string          `json:"location"`
	StartsAt        time.Time       `json:"starts_at"`
	EndsAt          *time.Time      `json:"ends_at,omitempty"`
	Capacity        int             `json:"capacity"` // 0 means unlimited
	Price           decimal.Decimal `json:"price"`
	Published       bool            `json:"published"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EndsAtOrDefault returns the end boundary used by the timing predicates.
func (e *Event) EndsAtOrDefault() time.Time {
	if e.EndsAt != nil {
		return *e.EndsAt
	}
	return e.StartsAt.Add(DefaultEventDuration)
}

// IsUpcoming reports whether the event has not started at now.
func (e *Event) IsUpcoming(now time.Time) bool {
	return now.Before(e.StartsAt)
}

// IsOngoing reports whether now lies between start (inclusive) and end (exclusive).
func (e *Event) IsOngoing(now time.Time) bool {
	return !now.Before(e.StartsAt) && now.Before(e.EndsAtOrDefault())
}

// IsPast reports whether the event is over at now.
func (e *Event) IsPast(now time.Time) bool {
	return !now.Before(e.EndsAtOrDefault())
}

// IsFree reports whether registering costs nothing.
func (e *Event) IsFree() bool {
	return !e.Price.IsPositive()
}
