package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/service"
)

// Transport names accepted by Run.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerInfo contains MCP server metadata
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Options configures a Server.
type Options struct {
	Info      ServerInfo
	ExportDir string
	Logger    *logrus.Logger
}

// Server exposes the triage pipeline as MCP tools.
type Server struct {
	mcpServer *mcp.Server
	triage    *service.TriageService
	audit     audit.Store
	exportDir string
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with every tool registered.
func NewServer(triage *service.TriageService, store audit.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Info.Name == "" {
		opts.Info = ServerInfo{Name: "symptom-triage", Version: "1.0.0"}
	}
	if store == nil {
		store = audit.NopStore{}
	}

	server := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: opts.Info.Name, Version: opts.Info.Version}, nil),
		triage:    triage,
		audit:     store,
		exportDir: opts.ExportDir,
		logger:    opts.Logger,
	}
	server.registerTools()
	return server
}

// registerTools registers the triage tools with the SDK. Input and output
// schemas are inferred from the handler types.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "classify_symptoms",
		Description: "Classify a symptom description into SAFE, CAUTION, URGENT or CRITICAL with score, reasons and suggested action. Stateless; never schedules an escalation.",
	}, s.handleClassifySymptoms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "create_session",
		Description: "Start a triage session. Assessments within a session can arm an emergency escalation.",
	}, s.handleCreateSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "assess_symptoms",
		Description: "Classify symptoms within a session. A CRITICAL result arms an emergency dispatch that fires after the escalation delay unless cancelled.",
	}, s.handleAssessSymptoms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "cancel_escalation",
		Description: "Cancel the pending emergency escalation of a session before it fires.",
	}, s.handleCancelEscalation)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "escalation_status",
		Description: "Report whether a session has a pending escalation and its deadline.",
	}, s.handleEscalationStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "close_session",
		Description: "End a session. Any pending escalation is cancelled.",
	}, s.handleCloseSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_vocabulary",
		Description: "List the symptom vocabulary and compound rules used for scoring.",
	}, s.handleListVocabulary)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "query_audit",
		Description: "List recent audit records of assessments and escalation transitions.",
	}, s.handleQueryAudit)

	if s.exportDir != "" {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "export_audit",
			Description: "Export the full audit log to a JSON file in the data directory.",
		}, s.handleExportAudit)
	}

	s.logger.Debug("Registered MCP tools")
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Run serves on the named transport until ctx is done. The http transport
// serves the streamable HTTP protocol on addr.
func (s *Server) Run(ctx context.Context, transport, addr string) error {
	s.logger.WithField("transport_type", transport).Info("Starting MCP server")

	switch transport {
	case "", TransportStdio:
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unsupported transport %q", transport)
	}
}

// HTTPHandler returns the streamable HTTP handler for this server.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.HTTPHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("MCP HTTP transport listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
