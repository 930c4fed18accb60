package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/evenia/backend/config"
	"github.com/evenia/backend/internal/app"
	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/database"
	"github.com/evenia/backend/pkg/utils"
)

func withApp(ctx context.Context, logger *zap.Logger, migrate bool, fn func(*app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func migrateCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending database migrations",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
			if err != nil {
				return err
			}
			defer pool.Close()
			return database.Migrate(ctx, pool, logger)
		},
	}
}

func createAdminCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "create-admin",
		Usage: "create a back-office account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "login email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "at least 8 characters", Required: true},
			&cli.StringFlag{Name: "name", Usage: "full name", Value: "Administrateur"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			hash, err := utils.HashPassword(cmd.String("password"))
			if err != nil {
				return err
			}
			return withApp(ctx, logger, true, func(a *app.App) error {
				email := strings.TrimSpace(cmd.String("email"))
				u, err := a.Users.Create(ctx, email, hash, cmd.String("name"), "", models.RoleAdmin)
				if err != nil {
					return fmt.Errorf("create admin %s: %w", email, err)
				}
				logger.Info("admin created", zap.String("user_id", u.ID.String()), zap.String("email", u.Email))
				return nil
			})
		},
	}
}

func issueCodesCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "issue-codes",
		Usage: "assign check-in codes to active registrations of an event that have none",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "event", Usage: "event id", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			eventID, err := uuid.Parse(cmd.String("event"))
			if err != nil {
				return fmt.Errorf("invalid event id: %w", err)
			}
			return withApp(ctx, logger, false, func(a *app.App) error {
				regs, err := a.Registrations.ListForEvent(ctx, eventID, "")
				if err != nil {
					return err
				}
				issued := 0
				for i := range regs {
					reg := &regs[i]
					if !reg.IsActive() || reg.QRCode != "" {
						continue
					}
					if _, err := a.Registrations.EnsureCode(ctx, reg); err != nil {
						return fmt.Errorf("registration %s: %w", reg.ID, err)
					}
					issued++
				}
				logger.Info("check-in codes issued",
					zap.String("event_id", eventID.String()),
					zap.Int("issued", issued),
					zap.Int("registrations", len(regs)))
				return nil
			})
		},
	}
}
