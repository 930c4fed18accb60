// Package main runs the background worker: email delivery and reminder scheduling.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/evenia/backend/config"
	"github.com/evenia/backend/internal/app"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("bootstrap", zap.Error(err))
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.EmailProcessor().Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.ReminderScheduler().Run(ctx)
	})
	logger.Info("worker started")

	if err := g.Wait(); err != nil {
		logger.Error("worker error", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
