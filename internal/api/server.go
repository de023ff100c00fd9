package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/middleware"
	"github.com/symptom-triage-server/internal/service"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP server exposes.
type Dependencies struct {
	Triage *service.TriageService
	Audit  audit.Store
	Events *EventHub
	Checks map[string]HealthCheck
	Logger *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	router        *gin.Engine
	server        *http.Server

	triage  *service.TriageService
	audit   audit.Store
	events  *EventHub
	checks  map[string]HealthCheck
	limiter *middleware.RateLimiter
	logger  *logrus.Logger
	started time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopStore{}
	}
	if deps.Events == nil {
		deps.Events = NewEventHub(deps.Logger)
	}

	server := &Server{
		configManager: configManager,
		router:        gin.New(),
		triage:        deps.Triage,
		audit:         deps.Audit,
		events:        deps.Events,
		checks:        deps.Checks,
		logger:        deps.Logger,
		started:       time.Now(),
	}
	if cfg.Server.RateLimit > 0 {
		server.limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
	}

	server.setupMiddleware(cfg.Server)
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware(cfg domain.ServerConfig) {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CorrelationID())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(corsMiddleware())
	s.router.Use(middleware.AuditLogger(s.logger))
	if s.limiter != nil {
		s.router.Use(s.limiter.Middleware())
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	timeout := s.configManager.GetServerConfig().RequestTimeout

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/vocabulary", s.handleVocabulary)
		v1.GET("/audit", middleware.RequestTimeout(timeout), s.handleAudit)
		v1.POST("/classify", middleware.RequestTimeout(timeout), s.handleClassify)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.handleCreateSession)
			sessions.DELETE("/:id", s.handleCloseSession)
			sessions.POST("/:id/assess", middleware.RequestTimeout(timeout), s.handleAssess)
			sessions.GET("/:id/escalation", s.handleEscalationStatus)
			sessions.DELETE("/:id/escalation", s.handleCancelEscalation)
			// Long-lived; no request timeout.
			sessions.GET("/:id/events", s.handleEvents)
		}
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully. The
// event hub and the rate limiter pruner run for the server's lifetime.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.events.Run(hubCtx)

	if s.limiter != nil {
		go s.pruneLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
