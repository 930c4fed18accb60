// Package app wires configuration into the shared dependency graph used by
// the server, the worker and evenctl.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/evenia/backend/config"
	"github.com/evenia/backend/internal/auth"
	"github.com/evenia/backend/internal/broadcast"
	"github.com/evenia/backend/internal/emaillogs"
	"github.com/evenia/backend/internal/events"
	"github.com/evenia/backend/internal/notifications"
	"github.com/evenia/backend/internal/registrations"
	"github.com/evenia/backend/internal/tickets"
	"github.com/evenia/backend/internal/worker"
	"github.com/evenia/backend/pkg/database"
	"github.com/evenia/backend/pkg/queue"
	"github.com/evenia/backend/pkg/redis"
)

// App holds long-lived connections and the services built on them.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Queue     *queue.Queue
	Publisher broadcast.Publisher
	Renderer  *tickets.Renderer

	Users         *auth.Repository
	Events        *events.Repository
	EmailLogs     *emaillogs.Repository
	Registrations *registrations.Service
}

// New connects to Postgres and Redis, optionally applies migrations, and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.Pool = pool
	if migrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	a.Queue = queue.NewQueue(rdb.Client, logger)
	a.Publisher = newPublisher(cfg.Broadcast, rdb)
	a.Renderer = tickets.NewRenderer(cfg.Ticket.Size, cfg.Ticket.Margin)

	a.Users = auth.NewRepository(pool)
	a.Events = events.NewRepository(pool)
	a.EmailLogs = emaillogs.NewRepository(pool)
	a.Registrations = registrations.NewService(
		registrations.NewRepository(pool),
		a.Events,
		logger,
		registrations.WithCodeAttempts(cfg.Ticket.CodeAttempts),
		registrations.WithEmailQueue(a.Queue),
		registrations.WithPublisher(a.Publisher),
	)
	logger.Info("services ready", zap.String("broadcast", cfg.Broadcast.Backend))
	return a, nil
}

func newPublisher(cfg config.BroadcastConfig, rdb *redis.Client) broadcast.Publisher {
	switch cfg.Backend {
	case "redis":
		return broadcast.NewRedis(rdb.Client)
	case "amqp":
		return broadcast.NewAMQP(cfg.AMQPURL, cfg.Exchange)
	default:
		return broadcast.Nop{}
	}
}

// Mailer returns the Resend mailer, or a logging mailer when no API key is set.
func (a *App) Mailer() notifications.Mailer {
	if a.Config.Email.APIKey == "" {
		a.Logger.Warn("RESEND_API_KEY not set, emails are logged only")
		return notifications.NewLogMailer(a.Logger)
	}
	return notifications.NewResendMailer(a.Config.Email.APIKey, a.Config.Email.From(), a.Logger)
}

// EmailProcessor builds the email job consumer.
func (a *App) EmailProcessor() *worker.EmailProcessor {
	return worker.NewEmailProcessor(
		a.Registrations,
		a.EmailLogs,
		a.Mailer(),
		a.Renderer,
		a.Queue,
		a.Config.Email.PublicBaseURL,
		a.Config.Email.Location(),
		a.Logger,
	)
}

// ReminderScheduler builds the reminder producer.
func (a *App) ReminderScheduler() *worker.ReminderScheduler {
	return worker.NewReminderScheduler(
		a.Registrations,
		a.Queue,
		a.Config.Worker.ReminderInterval,
		a.Config.Worker.ReminderLead,
		a.Logger,
	)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("close publisher", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
