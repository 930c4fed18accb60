// Package broadcast fans registration lifecycle events out to other services.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/models"
)

// Lifecycle topics.
const (
	TopicRegistrationCreated   = "registration.created"
	TopicRegistrationConfirmed = "registration.confirmed"
	TopicRegistrationCanceled  = "registration.canceled"
	TopicRegistrationAttended  = "registration.attended"
)

const publishTimeout = 5 * time.Second

// Message is the body published for every lifecycle change.
type Message struct {
	Topic          string                    `json:"topic"`
	RegistrationID uuid.UUID                 `json:"registration_id"`
	EventID        uuid.UUID                 `json:"event_id"`
	UserID         uuid.UUID                 `json:"user_id"`
	Status         models.RegistrationStatus `json:"status"`
	At             time.Time                 `json:"at"`
}

// NewMessage snapshots reg for topic.
func NewMessage(topic string, reg *models.Registration, at time.Time) Message {
	return Message{
		Topic:          topic,
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		Status:         reg.Status,
		At:             at.UTC(),
	}
}

func (m Message) body() ([]byte, error) {
	return json.Marshal(m)
}

// Publisher delivers lifecycle messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }
func (Nop) Close() error                           { return nil }

// Logged wraps a Publisher so failures are logged and never returned.
type Logged struct {
	next   Publisher
	logger *zap.Logger
}

// NewLogged wraps next. A nil next behaves as Nop.
func NewLogged(next Publisher, logger *zap.Logger) *Logged {
	if next == nil {
		next = Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logged{next: next, logger: logger}
}

// Publish sends msg with a bounded timeout detached from the request context.
func (l *Logged) Publish(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := l.next.Publish(ctx, msg); err != nil {
		l.logger.Warn("broadcast publish failed",
			zap.Error(err),
			zap.String("topic", msg.Topic),
			zap.String("registration_id", msg.RegistrationID.String()))
	}
	return nil
}

func (l *Logged) Close() error { return l.next.Close() }
