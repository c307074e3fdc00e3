package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookhub/relay/internal/config"
	"github.com/hookhub/relay/internal/idgen"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/otel"
	"github.com/hookhub/relay/internal/redis"
	"github.com/hookhub/relay/internal/services"
	"go.uber.org/zap"
)

type App struct {
	config *config.Config
}

func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

func (a *App) Run(ctx context.Context) error {
	return run(ctx, a.config)
}

func run(mainContext context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(
		logging.WithLogLevel(cfg.LogLevel),
		logging.WithAuditLog(cfg.AuditLog),
	)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting relay", cfg.LogConfigurationSummary()...)

	if err := idgen.Configure(idgen.IDTemplateConfig{
		Event:          cfg.IDTemplates.Event,
		Webhook:        cfg.IDTemplates.Webhook,
		Classification: cfg.IDTemplates.Classification,
	}); err != nil {
		logger.Error("failed to configure ID generators", zap.Error(err))
		return err
	}

	logger.Debug("initializing Redis client")
	redisClient, err := redis.New(mainContext, cfg.Redis.ToConfig())
	if err != nil {
		logger.Error("Redis client initialization failed", zap.Error(err))
		return err
	}

	if err := runMigration(mainContext, cfg, logger, redisClient); err != nil {
		return err
	}

	if !cfg.DisableTelemetry {
		installationID, err := getInstallation(mainContext, redisClient)
		if err != nil {
			return err
		}
		logger.Debug("installation identified", zap.String("installation_id", installationID))
	}

	// Set up cancellation context
	ctx, cancel := context.WithCancel(mainContext)
	defer cancel()

	// Set up OpenTelemetry.
	if otelConfig := cfg.OpenTelemetry.ToOTELConfig(); otelConfig != nil {
		otelShutdown, err := otel.SetupOTelSDK(ctx, otelConfig)
		if err != nil {
			return err
		}
		// Handle shutdown properly so nothing leaks.
		defer func() {
			err = errors.Join(err, otelShutdown(context.Background()))
		}()
	}

	logger.Debug("building services")
	builder := services.NewServiceBuilder(ctx, cfg, logger)
	if err := builder.BuildWorkers(); err != nil {
		logger.Error("failed to build workers", zap.Error(err))
		return err
	}

	supervisor, err := builder.Build()
	if err != nil {
		return err
	}

	// Handle sigterm and await termChan signal
	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	// Run workers in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- supervisor.Run(ctx)
	}()

	// Wait for either termination signal or worker failure
	var exitErr error
	select {
	case <-termChan:
		logger.Info("shutdown signal received")
		cancel() // Cancel context to trigger graceful shutdown
		err := <-errChan
		// context.Canceled is expected during graceful shutdown
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("error during graceful shutdown", zap.Error(err))
			exitErr = err
		}
	case err := <-errChan:
		// Workers exited unexpectedly
		if err != nil {
			logger.Error("workers exited unexpectedly", zap.Error(err))
			exitErr = err
		}
	}

	// Run cleanup functions
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	builder.Cleanup(shutdownCtx)

	logger.Info("relay shutdown complete")

	return exitErr
}
