package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/symptom-triage-server/internal/database"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/vocabulary"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, database.Config{
		Host:     host,
		Port:     port.Int(),
		Database: "testdb",
		Username: "testuser",
		Password: testPassword,
		MaxConns: 5,
		SSLMode:  "disable",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	databaseURL := "postgres://testuser:" + testPassword + "@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	runner, err := database.NewMigrationRunner(databaseURL, "", logger)
	require.NoError(t, err)
	t.Cleanup(func() { runner.Close() })
	require.NoError(t, runner.Up(ctx))

	return db
}

func TestVocabularyRepository_ReplaceAndLoad(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewVocabularyRepository(db.Pool, logger)

	require.NoError(t, repo.Replace(ctx, vocabulary.BuiltinSymptoms(), vocabulary.BuiltinRules()))

	symptoms, err := repo.LoadSymptoms(ctx)
	require.NoError(t, err)
	assert.Equal(t, vocabulary.BuiltinSymptoms(), symptoms)

	rules, err := repo.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, vocabulary.BuiltinRules(), rules)

	vocab, err := vocabulary.Load(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, vocabulary.Builtin().Names(), vocab.Names())
}

func TestVocabularyRepository_ReplaceOverwrites(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewVocabularyRepository(db.Pool, logger)

	require.NoError(t, repo.Replace(ctx, vocabulary.BuiltinSymptoms(), vocabulary.BuiltinRules()))
	small := []domain.SymptomEntry{{Name: "Rash", Weight: 10, Category: domain.CategoryDermatological}}
	require.NoError(t, repo.Replace(ctx, small, nil))

	symptoms, err := repo.LoadSymptoms(ctx)
	require.NoError(t, err)
	assert.Equal(t, small, symptoms)

	rules, err := repo.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestVocabularyRepository_RejectsOutOfRangeWeight(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	repo := NewVocabularyRepository(db.Pool, logger)

	err := repo.Replace(ctx, []domain.SymptomEntry{{Name: "Rash", Weight: 150, Category: domain.CategoryDermatological}}, nil)

	assert.Error(t, err)
}
