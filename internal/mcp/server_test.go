package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/vocabulary"
)

func newLiteTestServer(t *testing.T) *LiteServer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.EscalationDelay = time.Hour

	server, err := NewLiteServer(context.Background(), cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func TestNewLiteServer(t *testing.T) {
	server := newLiteTestServer(t)

	assert.NotNil(t, server.MCPServer())
	assert.NotNil(t, server.logger)
	assert.Equal(t, server.config.ExportDir(), server.exportDir)
	assert.FileExists(t, server.config.AuditDBPath())
}

func TestClassifySymptoms(t *testing.T) {
	server := newLiteTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleClassifySymptoms(ctx, nil, SymptomsInput{Symptoms: []string{"Chest pain", "Sweating"}})

	require.NoError(t, err)
	assert.Equal(t, string(domain.CRITICAL), out.Label)
	assert.NotEmpty(t, out.Reasons)
	assert.NotEmpty(t, out.Action)
	assert.Nil(t, out.Escalation)
}

func TestClassifySymptoms_InvalidSource(t *testing.T) {
	server := newLiteTestServer(t)

	_, _, err := server.handleClassifySymptoms(context.Background(), nil, SymptomsInput{Text: "fever", Source: "semaphore"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrValidation)
}

func TestSessionTools(t *testing.T) {
	server := newLiteTestServer(t)
	ctx := context.Background()

	_, session, err := server.handleCreateSession(ctx, nil, NoInput{})
	require.NoError(t, err)
	require.NotEmpty(t, session.SessionID)

	_, assessed, err := server.handleAssessSymptoms(ctx, nil, AssessInput{
		SessionID: session.SessionID,
		Symptoms:  []string{"Chest pain", "Sweating"},
	})
	require.NoError(t, err)
	require.NotNil(t, assessed.Escalation)
	assert.Equal(t, string(domain.CRITICAL), assessed.Escalation.Label)

	_, status, err := server.handleEscalationStatus(ctx, nil, SessionInput{SessionID: session.SessionID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.EscalationPending), status.State)
	require.NotNil(t, status.Escalation)
	assert.Equal(t, assessed.Escalation.ID, status.Escalation.ID)

	_, cancelled, err := server.handleCancelEscalation(ctx, nil, SessionInput{SessionID: session.SessionID})
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)

	_, _, err = server.handleCancelEscalation(ctx, nil, SessionInput{SessionID: session.SessionID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrEscalationMissing)

	_, status, err = server.handleEscalationStatus(ctx, nil, SessionInput{SessionID: session.SessionID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.EscalationIdle), status.State)
	assert.Nil(t, status.Escalation)

	_, _, err = server.handleCloseSession(ctx, nil, SessionInput{SessionID: session.SessionID})
	require.NoError(t, err)

	_, _, err = server.handleAssessSymptoms(ctx, nil, AssessInput{SessionID: session.SessionID, Text: "fever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrSessionEnded)
}

func TestAssessSymptoms_UnknownSession(t *testing.T) {
	server := newLiteTestServer(t)

	_, _, err := server.handleAssessSymptoms(context.Background(), nil, AssessInput{SessionID: "missing", Text: "fever"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrSessionMissing)
}

func TestListVocabulary(t *testing.T) {
	server := newLiteTestServer(t)

	_, out, err := server.handleListVocabulary(context.Background(), nil, NoInput{})

	require.NoError(t, err)
	assert.Len(t, out.Symptoms, len(vocabulary.BuiltinSymptoms()))
	assert.Len(t, out.Rules, len(vocabulary.BuiltinRules()))
}

func TestQueryAndExportAudit(t *testing.T) {
	server := newLiteTestServer(t)
	ctx := context.Background()

	_, _, err := server.handleClassifySymptoms(ctx, nil, SymptomsInput{Text: "fever and cough"})
	require.NoError(t, err)

	_, out, err := server.handleQueryAudit(ctx, nil, AuditInput{Kind: string(audit.KindAssessment)})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "classified", out.Records[0].Event)
	assert.Equal(t, int64(1), out.Total)

	_, out, err = server.handleQueryAudit(ctx, nil, AuditInput{SessionID: "no-such-session"})
	require.NoError(t, err)
	assert.Empty(t, out.Records)
	assert.Equal(t, int64(0), out.Total)

	_, _, err = server.handleQueryAudit(ctx, nil, AuditInput{Kind: "gossip"})
	assert.Error(t, err)

	_, export, err := server.handleExportAudit(ctx, nil, NoInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), export.Count)
	assert.Equal(t, server.config.ExportDir(), filepath.Dir(export.FilePath))

	data, err := os.ReadFile(export.FilePath)
	require.NoError(t, err)
	var exported audit.Export
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Len(t, exported.Records, 1)
}

func TestRun_UnknownTransport(t *testing.T) {
	server := newLiteTestServer(t)

	err := server.Run(context.Background(), "carrier-pigeon", "")

	assert.Error(t, err)
}
