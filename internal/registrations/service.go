package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/broadcast"
	"github.com/evenia/backend/internal/events"
	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/internal/tickets"
	"github.com/evenia/backend/pkg/queue"
)

// DefaultCodeAttempts bounds code generation retries on collision.
const DefaultCodeAttempts = 5

// EmailQueue accepts outbound mail jobs.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Service implements registration, verification and lifecycle operations.
// It holds no per-registration state; all of it lives in the Store.
type Service struct {
	store        Store
	events       EventLookup
	now          func() time.Time
	newCode      func() (string, error)
	codeAttempts uint
	emails       EmailQueue
	publisher    broadcast.Publisher
	logger       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces tickets.NewCode.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

// WithCodeAttempts sets how many codes are tried before giving up.
func WithCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeAttempts = uint(n)
		}
	}
}

// WithEmailQueue enables confirmation and cancellation emails.
func WithEmailQueue(q EmailQueue) Option {
	return func(s *Service) { s.emails = q }
}

// WithPublisher enables lifecycle broadcasts.
func WithPublisher(p broadcast.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a registrations service.
func NewService(store Store, eventLookup EventLookup, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:        store,
		events:       eventLookup,
		now:          time.Now,
		newCode:      tickets.NewCode,
		codeAttempts: DefaultCodeAttempts,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publisher = broadcast.NewLogged(s.publisher, logger)
	return s
}

// Register creates a registration of userID for eventID. Free events are
// confirmed right away; paid ones stay pending until confirmed.
func (s *Service) Register(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, persistence("load event", err)
	}
	if !ev.Published {
		return nil, ErrEventNotFound
	}
	now := s.now()
	if !ev.IsUpcoming(now) {
		return nil, ErrRegistrationClosed
	}

	status := models.StatusPending
	if ev.IsFree() {
		status = models.StatusConfirmed
	}
	reg := &models.Registration{
		ID:      uuid.New(),
		UserID:  userID,
		EventID: eventID,
		Status:  status,
		Price:   ev.Price,
	}
	if err := s.store.Create(ctx, reg, ev.Capacity); err != nil {
		return nil, err
	}
	reg.Event = ev

	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", eventID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)))
	s.publish(ctx, broadcast.TopicRegistrationCreated, reg)
	if status == models.StatusConfirmed {
		s.enqueue(ctx, models.EmailTypeRegistrationConfirmation, reg)
	}
	return reg, nil
}

// Get returns a registration by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.store.GetByID(ctx, id)
}

// GetForUser returns the registration only if userID owns it.
func (s *Service) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		return nil, ErrNotFound
	}
	return reg, nil
}

// ListForUser returns the user's registrations, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListForEvent returns the event's registrations, optionally filtered by status.
func (s *Service) ListForEvent(ctx context.Context, eventID uuid.UUID, status models.RegistrationStatus) ([]models.Registration, error) {
	return s.store.ListByEvent(ctx, eventID, status)
}

// Stats aggregates the event's registrations.
func (s *Service) Stats(ctx context.Context, eventID uuid.UUID) (*models.RegistrationStats, error) {
	return s.store.Stats(ctx, eventID)
}

// Confirm moves a pending registration to confirmed and sends the ticket.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.MutateByID(ctx, id, Confirm)
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration confirmed", zap.String("registration_id", id.String()))
	s.publish(ctx, broadcast.TopicRegistrationConfirmed, reg)
	s.enqueue(ctx, models.EmailTypeRegistrationConfirmation, reg)
	return reg, nil
}

// Cancel cancels any active registration of an upcoming event.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.cancel(ctx, id, nil)
}

// CancelForUser is Cancel restricted to the owner of the registration.
func (s *Service) CancelForUser(ctx context.Context, userID, id uuid.UUID) (*models.Registration, error) {
	return s.cancel(ctx, id, &userID)
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*models.Registration, error) {
	now := s.now()
	reg, err := s.store.MutateByID(ctx, id, func(reg *models.Registration) error {
		if owner != nil && reg.UserID != *owner {
			return ErrNotFound
		}
		return Cancel(reg, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration canceled", zap.String("registration_id", id.String()))
	s.publish(ctx, broadcast.TopicRegistrationCanceled, reg)
	s.enqueue(ctx, models.EmailTypeCancellation, reg)
	return reg, nil
}

// EnsureCode gives reg a check-in code if it has none and returns it.
// Collisions are retried with fresh codes; running out of attempts is a
// persistence failure. reg.QRCode is updated in place.
func (s *Service) EnsureCode(ctx context.Context, reg *models.Registration) (string, error) {
	if reg.QRCode != "" {
		return reg.QRCode, nil
	}
	code, err := retry.DoWithData(
		func() (string, error) {
			candidate, err := s.newCode()
			if err != nil {
				return "", retry.Unrecoverable(fmt.Errorf("generate code: %w", err))
			}
			return s.store.AssignCode(ctx, reg.ID, candidate)
		},
		retry.Context(ctx),
		retry.Attempts(s.codeAttempts),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrCodeTaken) }),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("check-in code collision", zap.Uint("attempt", n+1), zap.String("registration_id", reg.ID.String()))
		}),
	)
	if err != nil {
		if errors.Is(err, ErrCodeTaken) {
			return "", fmt.Errorf("%w: no free check-in code after %d attempts", ErrPersistence, s.codeAttempts)
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
			return "", err
		}
		return "", persistence("assign code", err)
	}
	reg.QRCode = code
	return code, nil
}

// Ticket ensures reg has a code and builds its QR payload. Only active
// registrations get a ticket.
func (s *Service) Ticket(ctx context.Context, reg *models.Registration) (tickets.Payload, error) {
	if !reg.IsActive() {
		return tickets.Payload{}, fmt.Errorf("%w: registration is %s", ErrNotFound, reg.Status)
	}
	if _, err := s.EnsureCode(ctx, reg); err != nil {
		return tickets.Payload{}, err
	}
	return tickets.BuildPayload(reg, s.now())
}

// Verify resolves a scanned code to its active registration. Unknown codes
// and codes of attended or canceled registrations are both ErrNotFound.
func (s *Service) Verify(ctx context.Context, scanned string) (*models.Registration, error) {
	code := tickets.CodeFromScan(scanned)
	if code == "" {
		return nil, ErrNotFound
	}
	reg, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !reg.IsActive() {
		return nil, ErrNotFound
	}
	return reg, nil
}

// MarkAttended checks in the registration behind a scanned code. The row stays
// locked from the active check to the write, so of two concurrent scans one
// succeeds and the other sees an inactive registration (ErrNotFound).
func (s *Service) MarkAttended(ctx context.Context, scanned string) (*models.Registration, error) {
	code := tickets.CodeFromScan(scanned)
	if code == "" {
		return nil, ErrNotFound
	}
	now := s.now()
	reg, err := s.store.MutateByCode(ctx, code, func(reg *models.Registration) error {
		if !reg.IsActive() {
			return ErrNotFound
		}
		return Attend(reg, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration attended",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", reg.EventID.String()))
	s.publish(ctx, broadcast.TopicRegistrationAttended, reg)
	return reg, nil
}

// DueReminders lists registrations whose event starts within lead from now
// and that have not been reminded yet.
func (s *Service) DueReminders(ctx context.Context, lead time.Duration) ([]models.Registration, error) {
	now := s.now()
	return s.store.DueReminders(ctx, now, now.Add(lead))
}

func (s *Service) publish(ctx context.Context, topic string, reg *models.Registration) {
	_ = s.publisher.Publish(ctx, broadcast.NewMessage(topic, reg, s.now()))
}

func (s *Service) enqueue(ctx context.Context, emailType string, reg *models.Registration) {
	if s.emails == nil {
		return
	}
	err := s.emails.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      emailType,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
	})
	if err != nil {
		s.logger.Error("enqueue email failed",
			zap.Error(err),
			zap.String("email_type", emailType),
			zap.String("registration_id", reg.ID.String()))
	}
}
