// Package mcp provides the MCP server implementation.
// This file contains the lightweight server that requires no external services.
package mcp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/app"
	litecfg "github.com/symptom-triage-server/internal/config"
)

// LiteServer is a standalone MCP server: builtin or file vocabulary, an
// in-memory result cache and a SQLite audit log under the data directory.
type LiteServer struct {
	*Server
	config *litecfg.LiteConfig
	app    *app.App
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*liteOptions)

type liteOptions struct {
	logger *logrus.Logger
	app    app.Options
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(o *liteOptions) {
		o.logger = logger
	}
}

// WithAppOptions overrides pipeline collaborators such as the dispatcher.
func WithAppOptions(opts app.Options) LiteServerOption {
	return func(o *liteOptions) {
		o.app = opts
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(ctx context.Context, cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	o := &liteOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
		if cfg.LogFormat == "text" {
			o.logger.SetFormatter(&logrus.TextFormatter{})
		} else {
			o.logger.SetFormatter(&logrus.JSONFormatter{})
		}
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			o.logger.SetLevel(level)
		}
	}

	pipeline, err := app.NewLite(ctx, cfg, o.logger, o.app)
	if err != nil {
		return nil, fmt.Errorf("failed to build triage pipeline: %w", err)
	}

	server := &LiteServer{
		Server: NewServer(pipeline.Triage, pipeline.Audit, Options{
			Info:      ServerInfo{Name: "symptom-triage-lite", Version: "1.0.0"},
			ExportDir: cfg.ExportDir(),
			Logger:    o.logger,
		}),
		config: cfg,
		app:    pipeline,
	}

	o.logger.WithField("data_dir", cfg.DataDir).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves on the configured transport until ctx is done.
func (s *LiteServer) Start(ctx context.Context) error {
	return s.Run(ctx, s.config.Transport, fmt.Sprintf(":%d", s.config.HTTPPort))
}

// Close releases the pipeline: sessions, audit store and cache.
func (s *LiteServer) Close() error {
	return s.app.Close()
}
