package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/internal/notifications"
	"github.com/evenia/backend/internal/registrations"
	"github.com/evenia/backend/internal/tickets"
	"github.com/evenia/backend/pkg/queue"
)

// Registrations is the part of registrations.Service the worker needs.
type Registrations interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	Ticket(ctx context.Context, reg *models.Registration) (tickets.Payload, error)
	DueReminders(ctx context.Context, lead time.Duration) ([]models.Registration, error)
}

// EmailLogs records deliveries; *emaillogs.Repository implements it.
type EmailLogs interface {
	Create(ctx context.Context, el *models.EmailLog) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	HasSent(ctx context.Context, registrationID uuid.UUID, emailType string) (bool, error)
}

// JobSource is the consuming side of the job queue.
type JobSource interface {
	Dequeue(ctx context.Context, key string) (*queue.Job, error)
	Retry(ctx context.Context, key string, job *queue.Job) error
}

// EmailProcessor turns email jobs into sent messages.
type EmailProcessor struct {
	regs     Registrations
	logs     EmailLogs
	mailer   notifications.Mailer
	renderer *tickets.Renderer
	queue    JobSource
	baseURL  string
	loc      *time.Location
	now      func() time.Time
	backoff  time.Duration
	logger   *zap.Logger
}

// NewEmailProcessor creates an email job processor. Dates in messages are shown in loc.
func NewEmailProcessor(regs Registrations, logs EmailLogs, mailer notifications.Mailer, renderer *tickets.Renderer, q JobSource, baseURL string, loc *time.Location, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EmailProcessor{
		regs:     regs,
		logs:     logs,
		mailer:   mailer,
		renderer: renderer,
		queue:    q,
		baseURL:  baseURL,
		loc:      loc,
		now:      time.Now,
		backoff:  queue.RetryBackoff,
		logger:   logger,
	}
}

// Process executes one email job. Jobs that became pointless (registration
// gone, reminder already sent, confirmation for a canceled registration) are
// dropped without error.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("registration_id", payload.RegistrationID.String()),
	}

	reg, err := p.regs.Get(ctx, payload.RegistrationID)
	if err != nil {
		if errors.Is(err, registrations.ErrNotFound) {
			p.logger.Info("registration gone, dropping email", fields...)
			return nil
		}
		return fmt.Errorf("load registration: %w", err)
	}
	if reg.User == nil || reg.Event == nil {
		return fmt.Errorf("registration %s loaded without user or event", reg.ID)
	}
	if payload.EmailType != models.EmailTypeCancellation && !reg.IsActive() {
		p.logger.Info("registration no longer active, dropping email", fields...)
		return nil
	}
	if payload.EmailType == models.EmailTypeReminder24h {
		sent, err := p.logs.HasSent(ctx, reg.ID, payload.EmailType)
		if err != nil {
			return fmt.Errorf("check email log: %w", err)
		}
		if sent {
			p.logger.Debug("reminder already sent", fields...)
			return nil
		}
	}

	var png []byte
	if notifications.NeedsTicket(payload.EmailType) {
		ticket, err := p.regs.Ticket(ctx, reg)
		if err != nil {
			return fmt.Errorf("build ticket: %w", err)
		}
		if png, err = p.renderer.PNG(ticket); err != nil {
			return fmt.Errorf("render ticket: %w", err)
		}
	}
	msg, err := notifications.Render(payload.EmailType, reg.User.Email, notifications.NewContent(reg, p.baseURL, p.loc), png)
	if err != nil {
		return err
	}

	entry := &models.EmailLog{
		EventID:        &reg.EventID,
		RegistrationID: &reg.ID,
		EmailType:      payload.EmailType,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}
	messageID, err := p.mailer.Send(ctx, msg)
	if err != nil {
		if logErr := p.logs.MarkFailed(ctx, entry.ID, err.Error()); logErr != nil {
			p.logger.Error("mark email failed", append(fields, zap.Error(logErr))...)
		}
		return fmt.Errorf("send: %w", err)
	}
	if err := p.logs.MarkSent(ctx, entry.ID, p.now()); err != nil {
		p.logger.Error("mark email sent", append(fields, zap.Error(err))...)
	}
	p.logger.Info("email sent", append(fields, zap.String("message_id", messageID))...)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, queue.QueueEmails)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, queue.QueueEmails, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
