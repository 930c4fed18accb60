// Package main runs the Evenia HTTP API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/evenia/backend/config"
	"github.com/evenia/backend/internal/analytics"
	"github.com/evenia/backend/internal/app"
	"github.com/evenia/backend/internal/auth"
	"github.com/evenia/backend/internal/emaillogs"
	"github.com/evenia/backend/internal/events"
	"github.com/evenia/backend/internal/middleware"
	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/internal/registrations"
	"github.com/evenia/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("bootstrap", zap.Error(err))
	}
	defer a.Close()

	if cfg.Admin.APIToken == "" {
		logger.Warn("ADMIN_API_TOKEN not set, admin API rejects every request")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	authHandler := auth.NewHandler(a.Users, jwtService, logger)
	eventHandler := events.NewHandler(a.Events, logger)
	registrationHandler := registrations.NewHandler(a.Registrations, a.Renderer, logger)
	checkinHandler := registrations.NewAdminHandler(a.Registrations, logger)
	analyticsHandler := analytics.NewHandler(a.Registrations, a.Events, logger)
	emailLogsHandler := emaillogs.NewHandler(a.EmailLogs, a.Registrations, a.Queue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := a.Pool.Ping(c.Request.Context()); err != nil || !a.Redis.Healthy(c.Request.Context()) {
			response.ServiceUnavailable(c, "dependencies unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Public
	public := router.Group("")
	authHandler.RegisterRoutes(public)
	eventHandler.RegisterPublicRoutes(public)

	// Users (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	registrationHandler.RegisterRoutes(api)

	// Back office: the check-in app with the static token, the web console with an admin session.
	adminGroups := []*gin.RouterGroup{
		router.Group("/admin/api", middleware.AdminToken(cfg.Admin.APIToken)),
		router.Group("/backoffice/api", middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin)),
	}
	for _, admin := range adminGroups {
		eventHandler.RegisterAdminRoutes(admin)
		checkinHandler.RegisterRoutes(admin)
		analyticsHandler.RegisterRoutes(admin)
		emailLogsHandler.RegisterRoutes(admin)
		authHandler.RegisterAdminRoutes(admin)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background email worker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.InProcess {
		go a.EmailProcessor().Run(workerCtx)
		go func() {
			if err := a.ReminderScheduler().Run(workerCtx); err != nil {
				logger.Error("reminder scheduler", zap.Error(err))
			}
		}()
		logger.Info("in-process email worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
