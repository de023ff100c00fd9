package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/dispatch"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/service"
	"github.com/symptom-triage-server/internal/vocabulary"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *domain.Config {
	t.Helper()
	return &domain.Config{
		Triage: domain.TriageConfig{
			EscalationDelay: 20 * time.Millisecond,
			FuzzyThreshold:  0.75,
		},
		Vocabulary: domain.VocabularyConfig{Source: "builtin"},
		Cache:      domain.CacheConfig{Enabled: true, MemorySize: 10, DefaultTTL: time.Minute},
		Audit:      domain.AuditConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "audit.db")},
		Dispatch:   domain.DispatchConfig{Mode: "log"},
	}
}

func TestNew_CriticalAssessmentDispatches(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []dispatch.Request
		events   []service.EscalationEventType
	)
	a, err := New(context.Background(), testConfig(t), quietLogger(), Options{
		Dispatcher: dispatch.DispatcherFunc(func(ctx context.Context, req dispatch.Request) error {
			mu.Lock()
			defer mu.Unlock()
			requests = append(requests, req)
			return nil
		}),
		Observer: func(e service.EscalationEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e.Type)
		},
	})
	require.NoError(t, err)
	require.NotNil(t, a.Cache)

	ctx := context.Background()
	session := a.Triage.CreateSession(ctx)
	result, err := a.Triage.Assess(ctx, session.ID, domain.SymptomInput{Symptoms: []string{"Chest pain", "Sweating"}})
	require.NoError(t, err)
	require.NotNil(t, result.PendingEscalation)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Len(t, requests, 1)
	assert.Equal(t, session.ID, requests[0].SessionID)
	assert.Equal(t, []service.EscalationEventType{service.EventArmed, service.EventFired, service.EventDispatched}, events)
	mu.Unlock()

	records, err := a.Audit.List(ctx, audit.Filter{SessionID: session.ID, Kind: audit.KindEscalation})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	checks := a.HealthChecks()
	assert.Contains(t, checks, "audit")
	assert.Contains(t, checks, "cache")
	assert.NotContains(t, checks, "database")
	for name, check := range checks {
		assert.NoError(t, check(ctx), name)
	}

	assert.NoError(t, a.Close())
}

func TestNew_CacheDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Enabled = false

	a, err := New(context.Background(), cfg, quietLogger(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Cache)
	result, err := a.Triage.Classify(context.Background(), domain.SymptomInput{Text: "fever"})
	require.NoError(t, err)
	assert.NotEqual(t, domain.CRITICAL, result.Label)
}

func TestNew_FileVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symptoms:
  - name: hiccups
    weight: 40
    category: gastrointestinal
rules: []
`), 0o644))

	cfg := testConfig(t)
	cfg.Vocabulary = domain.VocabularyConfig{Source: "file", File: path}

	a, err := New(context.Background(), cfg, quietLogger(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"hiccups"}, a.Triage.Vocabulary().Names())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"unknown vocabulary source", func(c *domain.Config) { c.Vocabulary.Source = "ldap" }},
		{"missing vocabulary file", func(c *domain.Config) {
			c.Vocabulary = domain.VocabularyConfig{Source: "file", File: "/nonexistent/vocabulary.yaml"}
		}},
		{"unknown audit driver", func(c *domain.Config) { c.Audit.Driver = "mongo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			_, err := New(context.Background(), cfg, quietLogger(), Options{})

			assert.Error(t, err)
		})
	}
}

func TestLiteDomainConfig(t *testing.T) {
	lite := config.DefaultLiteConfig()
	lite.DataDir = t.TempDir()

	cfg := LiteDomainConfig(lite)
	assert.Equal(t, "builtin", cfg.Vocabulary.Source)
	assert.Equal(t, "sqlite", cfg.Audit.Driver)
	assert.Equal(t, filepath.Join(lite.DataDir, "audit.db"), cfg.Audit.SQLitePath)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Triage.EscalationDelay)

	lite.VocabularyFile = "/etc/triage/vocabulary.yaml"
	cfg = LiteDomainConfig(lite)
	assert.Equal(t, domain.VocabularyConfig{Source: "file", File: "/etc/triage/vocabulary.yaml"}, cfg.Vocabulary)
}

func TestNewLite(t *testing.T) {
	lite := config.DefaultLiteConfig()
	lite.DataDir = filepath.Join(t.TempDir(), "data")

	a, err := NewLite(context.Background(), lite, quietLogger(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.DirExists(t, lite.ExportDir())
	assert.FileExists(t, lite.AuditDBPath())
	assert.Equal(t, len(vocabulary.Builtin().Names()), len(a.Triage.Vocabulary().Names()))
}
