package worker

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/queue"
)

// Enqueuer is the producing side of the job queue.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// ReminderScheduler periodically queues reminder emails for events about to start.
type ReminderScheduler struct {
	regs     Registrations
	queue    Enqueuer
	interval time.Duration
	lead     time.Duration
	logger   *zap.Logger
}

// NewReminderScheduler creates a scheduler that looks lead ahead every interval.
func NewReminderScheduler(regs Registrations, q Enqueuer, interval, lead time.Duration, logger *zap.Logger) *ReminderScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderScheduler{regs: regs, queue: q, interval: interval, lead: lead, logger: logger}
}

// Tick queues one reminder per due registration and returns how many were queued.
func (s *ReminderScheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.regs.DueReminders(ctx, s.lead)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, reg := range due {
		err := s.queue.EnqueueEmail(ctx, queue.EmailPayload{
			EmailType:      models.EmailTypeReminder24h,
			EventID:        reg.EventID,
			RegistrationID: reg.ID,
		})
		if err != nil {
			s.logger.Error("enqueue reminder failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
			continue
		}
		queued++
	}
	return queued, nil
}

// Run schedules Tick every interval until ctx is done.
func (s *ReminderScheduler) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			n, err := s.Tick(ctx)
			if err != nil {
				s.logger.Error("reminder scan failed", zap.Error(err))
				return
			}
			if n > 0 {
				s.logger.Info("reminders queued", zap.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	s.logger.Info("reminder scheduler started", zap.Duration("interval", s.interval), zap.Duration("lead", s.lead))

	<-ctx.Done()
	return scheduler.Shutdown()
}
