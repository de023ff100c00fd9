package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-triage-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "audit-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "audit.db"))
	require.NoError(t, err)
	return store
}

func assessmentRecord(sessionID string) *Record {
	return &Record{
		Kind:           KindAssessment,
		Event:          "assessed",
		SessionID:      sessionID,
		Source:         "typed",
		Label:          "CRITICAL",
		Score:          100,
		Confidence:     24,
		Reasons:        []string{"Chest pain detected", "Chest pain with sweating may indicate a heart attack"},
		NormalizedText: "chest pain sweating",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "audit-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "audit.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_Record(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	rec := assessmentRecord("sess-1")

	err := store.Record(context.Background(), rec)

	require.NoError(t, err)
	assert.NotZero(t, rec.ID, "ID should be assigned")
	assert.False(t, rec.CreatedAt.IsZero(), "CreatedAt should be set")
}

func TestSQLiteStore_List(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, assessmentRecord("sess-1")))
	require.NoError(t, store.Record(ctx, &Record{
		Kind:         KindEscalation,
		Event:        "armed",
		SessionID:    "sess-1",
		EscalationID: "esc-1",
		Label:        "CRITICAL",
	}))
	require.NoError(t, store.Record(ctx, assessmentRecord("sess-2")))

	t.Run("all newest first", func(t *testing.T) {
		all, err := store.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "sess-2", all[0].SessionID)
	})

	t.Run("by session", func(t *testing.T) {
		recs, err := store.List(ctx, Filter{SessionID: "sess-1"})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("by kind", func(t *testing.T) {
		recs, err := store.List(ctx, Filter{Kind: KindEscalation})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "esc-1", recs[0].EscalationID)
		assert.Equal(t, "armed", recs[0].Event)
	})

	t.Run("pagination", func(t *testing.T) {
		recs, err := store.List(ctx, Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, KindEscalation, recs[0].Kind)
	})

	t.Run("reasons round trip", func(t *testing.T) {
		recs, err := store.List(ctx, Filter{SessionID: "sess-2"})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, []string{"Chest pain detected", "Chest pain with sweating may indicate a heart attack"}, recs[0].Reasons)
	})
}

func TestSQLiteStore_Count(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, store.Record(ctx, assessmentRecord("sess-1")))
	require.NoError(t, store.Record(ctx, assessmentRecord("sess-1")))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, assessmentRecord("sess-1")))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 1, export.Count)
	require.Len(t, export.Records, 1)
	assert.Equal(t, "chest pain sweating", export.Records[0].NormalizedText)
}

func TestOpen(t *testing.T) {
	store, err := Open(domain.AuditConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, store)

	_, err = Open(domain.AuditConfig{Driver: "mongo"})
	assert.Error(t, err)

	tmpDir, err := os.MkdirTemp("", "audit-open-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	store, err = Open(domain.AuditConfig{Driver: "sqlite", SQLitePath: filepath.Join(tmpDir, "a.db")})
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLiteStore{}, store)
}

func TestSQLiteStore_CountFiltered(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, assessmentRecord("sess-1")))
	require.NoError(t, store.Record(ctx, assessmentRecord("sess-2")))
	require.NoError(t, store.Record(ctx, &Record{Kind: KindEscalation, Event: "armed", SessionID: "sess-1"}))

	tests := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{"no filter", Filter{}, 3},
		{"session", Filter{SessionID: "sess-1"}, 2},
		{"kind", Filter{Kind: KindAssessment}, 2},
		{"session and kind", Filter{SessionID: "sess-1", Kind: KindEscalation}, 1},
		{"limit ignored", Filter{SessionID: "sess-1", Limit: 1, Offset: 1}, 2},
		{"no match", Filter{SessionID: "sess-9"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := store.CountFiltered(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}
}
