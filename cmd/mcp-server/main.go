package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/symptom-triage-server/internal/app"
	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/logging"
	"github.com/symptom-triage-server/internal/mcp"
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

	// stdout carries the protocol on the stdio transport.
	if cfg.MCP.Transport == mcp.TransportStdio && (cfg.Logging.Output == "" || cfg.Logging.Output == "stdout") {
		cfg.Logging.Output = "stderr"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build triage pipeline")
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.WithError(err).Error("Failed to release resources")
		}
	}()

	server := mcp.NewServer(pipeline.Triage, pipeline.Audit, mcp.Options{
		Info:   mcp.ServerInfo{Name: cfg.MCP.ServerName, Version: cfg.MCP.ServerVersion},
		Logger: logger,
	})

	if err := server.Run(ctx, cfg.MCP.Transport, cfg.MCP.HTTPAddr); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("Symptom triage MCP server stopped")
}
