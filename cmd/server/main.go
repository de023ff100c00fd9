package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/symptom-triage-server/internal/api"
	"github.com/symptom-triage-server/internal/app"
	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/logging"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := api.NewEventHub(logger)
	pipeline, err := app.New(ctx, cfg, logger, app.Options{Observer: events.Publish})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build triage pipeline")
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.WithError(err).Error("Failed to release resources")
		}
	}()

	checks := make(map[string]api.HealthCheck)
	for name, check := range pipeline.HealthChecks() {
		checks[name] = check
	}

	server := api.NewServer(configManager, api.Dependencies{
		Triage: pipeline.Triage,
		Audit:  pipeline.Audit,
		Events: events,
		Checks: checks,
		Logger: logger,
	})

	logger.WithFields(map[string]any{
		"host":       cfg.Server.Host,
		"port":       cfg.Server.Port,
		"production": configManager.IsProduction(),
	}).Info("Starting symptom triage server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
