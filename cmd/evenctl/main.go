// Package main is the Evenia operations tool.
package main

import (
	"context"
	"os"
	_ "time/tzdata"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cmd := &cli.Command{
		Name:  "evenctl",
		Usage: "Evenia administration tool",
		Commands: []*cli.Command{
			migrateCommand(logger),
			createAdminCommand(logger),
			issueCodesCommand(logger),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
