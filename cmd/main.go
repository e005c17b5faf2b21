package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gh-presence/handler"
	"gh-presence/internal/bootstrap"
	"gh-presence/internal/config"
	"gh-presence/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	logger := config.NewBootstrapLogger()
	cfg, err := config.Load(pflag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	leveled, err := config.NewLogger(cfg.Level)
	if err != nil {
		logger.Fatal("failed to build logger", zap.String("level", cfg.Level), zap.Error(err))
	}
	logger = leveled
	defer func() { _ = logger.Sync() }()

	// ---- Clients ----
	remote, err := bootstrap.NewRemote(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create presence store", zap.Error(err))
	}
	defer func() { _ = remote.Close() }()

	// ---- Handler ----
	svc, err := usecase.NewPresenceService(remote.Store, remote.Settings, usecase.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create presence service", zap.Error(err))
	}

	h, err := handler.NewHandler(svc, logger)
	if err != nil {
		logger.Fatal("failed to create handler", zap.Error(err))
	}

	lambda.Start(h.Handle)
}
