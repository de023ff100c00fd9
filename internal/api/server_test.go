package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/service"
	"github.com/symptom-triage-server/internal/vocabulary"
)

type testServer struct {
	server   *Server
	hub      *EventHub
	sessions *service.SessionManager
	store    audit.Store
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  rate_limit: 0
triage:
  escalation_delay: 1h
`), 0o644))
	manager, err := config.NewManagerWithFile(path)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := audit.NewSQLiteStore(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)

	hub := NewEventHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	sessions := service.NewSessionManager(service.SessionManagerConfig{
		EscalationDelay: manager.GetTriageConfig().EscalationDelay,
		Observer:        service.Observers(service.AuditObserver(store, logger), hub.Publish),
		Logger:          logger,
	})
	classifier := service.NewClassifier(vocabulary.Builtin(), manager.GetTriageConfig().FuzzyThreshold, logger)
	triage := service.NewTriageService(classifier, sessions, nil, store, logger)

	t.Cleanup(func() {
		sessions.Shutdown()
		cancel()
		store.Close()
	})

	srv := NewServer(manager, Dependencies{
		Triage: triage,
		Audit:  store,
		Events: hub,
		Checks: checks,
		Logger: logger,
	})
	return &testServer{server: srv, hub: hub, sessions: sessions, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[SessionResponse](t, w).ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, map[string]HealthCheck{
		"audit": func(ctx context.Context) error { return nil },
	})

	w := ts.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"audit": "ok"}, body["checks"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestHealth_Degraded(t *testing.T) {
	ts := newTestServer(t, map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return assert.AnError },
	})

	w := ts.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode[map[string]any](t, w)["status"])
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{Symptoms: []string{"Chest pain", "Sweating"}})

	require.Equal(t, http.StatusOK, w.Code)
	result := decode[domain.ClassificationResult](t, w)
	assert.Equal(t, domain.CRITICAL, result.Label)
	assert.Nil(t, result.PendingEscalation)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestClassify_EmptyIsSafe(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SAFE, decode[domain.ClassificationResult](t, w).Label)
}

func TestClassify_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("invalid source", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{Text: "fever", Source: "fax"})

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, domain.ErrValidation, decode[domain.TriageError](t, w).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decode[domain.TriageError](t, w)
		assert.Equal(t, domain.ErrValidation, body.Code)
		assert.NotEmpty(t, body.RequestID)
	})
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/assess", ClassifyRequest{Symptoms: []string{"Chest pain", "Sweating"}})
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[domain.ClassificationResult](t, w)
	require.NotNil(t, result.PendingEscalation)
	assert.Equal(t, id, result.PendingEscalation.SessionID)

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/escalation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[EscalationStatusResponse](t, w)
	assert.Equal(t, domain.EscalationPending, status.State)
	require.NotNil(t, status.Escalation)
	assert.Equal(t, result.PendingEscalation.ID, status.Escalation.ID)

	w = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/escalation", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/escalation", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.ErrEscalationMissing, decode[domain.TriageError](t, w).Code)

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/escalation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.EscalationIdle, decode[EscalationStatusResponse](t, w).State)

	w = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/assess", ClassifyRequest{Text: "fever"})
	require.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, domain.ErrSessionEnded, decode[domain.TriageError](t, w).Code)
}

func TestSession_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/nope/assess", ClassifyRequest{Text: "fever"})

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrSessionMissing, decode[domain.TriageError](t, w).Code)
}

func TestAudit(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/classify", ClassifyRequest{Text: "fever"}).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/assess",
		ClassifyRequest{Symptoms: []string{"Chest pain", "Sweating"}}).Code)

	w := ts.do(t, http.MethodGet, "/api/v1/audit?session_id="+id+"&kind=assessment", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Records []audit.Record `json:"records"`
		Total   int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, "assessed", body.Records[0].Event)
	assert.Equal(t, int64(1), body.Total, "total counts only records matching the filters")

	w = ts.do(t, http.MethodGet, "/api/v1/audit?session_id="+id+"&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, int64(2), body.Total, "limit does not shrink the total")

	w = ts.do(t, http.MethodGet, "/api/v1/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Total)

	w = ts.do(t, http.MethodGet, "/api/v1/audit?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVocabulary(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/v1/vocabulary", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Symptoms []domain.SymptomEntry   `json:"symptoms"`
		Rules    []domain.RuleDefinition `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Symptoms, len(vocabulary.BuiltinSymptoms()))
	assert.Len(t, body.Rules, len(vocabulary.BuiltinRules()))
}

func TestEvents_StreamsEscalation(t *testing.T) {
	ts := newTestServer(t, nil)
	httpServer := httptest.NewServer(ts.server.Handler())
	defer httpServer.Close()

	id := ts.createSession(t)
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/api/v1/sessions/" + id + "/events"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return ts.hub.Subscribers(context.Background()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/assess", ClassifyRequest{Symptoms: []string{"Chest pain", "Sweating"}})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event service.EscalationEvent
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, service.EventArmed, event.Type)
	assert.Equal(t, id, event.Escalation.SessionID)
}

func TestEvents_UnknownSession(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/v1/sessions/nope/events", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
