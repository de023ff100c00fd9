// Package app assembles the triage pipeline from configuration. The HTTP
// server, the MCP servers and the CLI all build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/cache"
	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/database"
	"github.com/symptom-triage-server/internal/dispatch"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/repository"
	"github.com/symptom-triage-server/internal/service"
	"github.com/symptom-triage-server/internal/vocabulary"
)

// reapInterval is how often idle sessions are swept.
const reapInterval = time.Minute

// Options carries collaborators that are not built from configuration.
type Options struct {
	// Observer receives escalation events in addition to the audit log.
	Observer service.EscalationObserver
	// Dispatcher overrides the configured dispatcher.
	Dispatcher dispatch.Dispatcher
	// Clock overrides the real clock.
	Clock service.Clock
}

// App owns every long-lived collaborator of the pipeline.
type App struct {
	Triage   *service.TriageService
	Sessions *service.SessionManager
	Audit    audit.Store
	Cache    *cache.ResultCache
	DB       *database.DB

	logger     *logrus.Logger
	stopReaper context.CancelFunc
}

// New builds the pipeline described by cfg.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts Options) (*App, error) {
	a := &App{logger: logger}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.Vocabulary.Source == "postgres" {
		db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
		if err != nil {
			return nil, fmt.Errorf("connect vocabulary database: %w", err)
		}
		a.DB = db
	}

	vocab, err := a.loadVocabulary(ctx, cfg.Vocabulary)
	if err != nil {
		return nil, err
	}
	logger.WithFields(vocab.Stats()).WithField("source", cfg.Vocabulary.Source).Info("Vocabulary loaded")

	store, err := audit.Open(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	a.Audit = store

	// A nil *ResultCache must not reach the service as a non-nil interface.
	var resultCache service.ResultCache
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		a.Cache = c
		resultCache = c
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.New(cfg.Dispatch, logger)
	}

	a.Sessions = service.NewSessionManager(service.SessionManagerConfig{
		EscalationDelay: cfg.Triage.EscalationDelay,
		SessionTTL:      cfg.Triage.SessionTTL,
		Clock:           opts.Clock,
		Dispatcher:      dispatcher,
		Observer:        service.Observers(service.AuditObserver(store, logger), opts.Observer),
		Logger:          logger,
	})

	classifier := service.NewClassifier(vocab, cfg.Triage.FuzzyThreshold, logger)
	a.Triage = service.NewTriageService(classifier, a.Sessions, resultCache, store, logger)

	reaperCtx, cancel := context.WithCancel(context.Background())
	a.stopReaper = cancel
	a.Sessions.StartReaper(reaperCtx, reapInterval)

	ok = true
	return a, nil
}

// NewLite builds the pipeline from the standalone configuration: builtin
// or file vocabulary, SQLite audit under the data directory, memory cache
// and the logging dispatcher.
func NewLite(ctx context.Context, lite *config.LiteConfig, logger *logrus.Logger, opts Options) (*App, error) {
	if err := lite.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return New(ctx, LiteDomainConfig(lite), logger, opts)
}

// LiteDomainConfig maps the standalone configuration onto the full one.
func LiteDomainConfig(lite *config.LiteConfig) *domain.Config {
	cfg := &domain.Config{
		Triage: domain.TriageConfig{
			EscalationDelay: lite.EscalationDelay,
			FuzzyThreshold:  lite.FuzzyThreshold,
			SessionTTL:      30 * time.Minute,
		},
		Vocabulary: domain.VocabularyConfig{Source: "builtin"},
		Cache: domain.CacheConfig{
			Enabled:    lite.CacheMaxItems > 0,
			MemorySize: lite.CacheMaxItems,
			DefaultTTL: lite.CacheTTL,
		},
		Audit: domain.AuditConfig{
			Driver:     "sqlite",
			SQLitePath: lite.AuditDBPath(),
		},
		Dispatch: domain.DispatchConfig{Mode: "log"},
		Logging:  domain.LoggingConfig{Level: lite.LogLevel, Format: lite.LogFormat, Output: "stderr"},
	}
	if lite.VocabularyFile != "" {
		cfg.Vocabulary = domain.VocabularyConfig{Source: "file", File: lite.VocabularyFile}
	}
	return cfg
}

func (a *App) loadVocabulary(ctx context.Context, cfg domain.VocabularyConfig) (*vocabulary.Vocabulary, error) {
	var src domain.VocabularySource
	switch cfg.Source {
	case "", "builtin":
		return vocabulary.Builtin(), nil
	case "file":
		src = vocabulary.NewFileSource(cfg.File)
	case "postgres":
		src = repository.NewVocabularyRepository(a.DB.Pool, a.logger)
	default:
		return nil, fmt.Errorf("unknown vocabulary source %q", cfg.Source)
	}

	vocab, err := vocabulary.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load %s vocabulary: %w", cfg.Source, err)
	}
	return vocab, nil
}

// HealthChecks returns a check per external dependency in use.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"audit": func(ctx context.Context) error {
			_, err := a.Audit.Count(ctx)
			return err
		},
	}
	if a.Cache != nil {
		checks["cache"] = a.Cache.Ping
	}
	if a.DB != nil {
		checks["database"] = a.DB.Health
	}
	return checks
}

// Close stops the reaper, ends every session and releases storage. Pending
// escalations are cancelled; dispatches already in flight are awaited.
func (a *App) Close() error {
	if a.stopReaper != nil {
		a.stopReaper()
	}
	if a.Sessions != nil {
		a.Sessions.Shutdown()
	}

	var errs []error
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit store: %w", err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close result cache: %w", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	return errors.Join(errs...)
}
