package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-triage-server/internal/audit"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/service"
	"github.com/symptom-triage-server/internal/setup"
	"github.com/symptom-triage-server/internal/vocabulary"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"classify", "vocab", "migrate", "audit", "setup", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "triagectl dev (none)\n", out)
}

func TestClassify_Text(t *testing.T) {
	out, err := run(t, "classify", "--symptom", "Chest pain", "--symptom", "Sweating")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "CRITICAL (score "), lines[0])
}

func TestClassify_JSON(t *testing.T) {
	out, err := run(t, "classify", "--format", "json", "--symptom", "Chest pain", "--symptom", "Sweating")
	require.NoError(t, err)

	var result domain.ClassificationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.CRITICAL, result.Label)
	assert.NotEmpty(t, result.Reasons)
}

func TestClassify_EmptyIsSafe(t *testing.T) {
	out, err := run(t, "classify", "--format", "json")
	require.NoError(t, err)

	var result domain.ClassificationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.SAFE, result.Label)
	assert.Equal(t, service.BaselineScore, result.Score)
}

func TestClassify_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown source", []string{"classify", "--source", "fax", "cough"}},
		{"unknown format", []string{"classify", "--format", "xml", "cough"}},
		{"missing vocabulary", []string{"classify", "--vocabulary", "/nonexistent/vocab.yaml", "cough"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestVocabDump_RoundTrips(t *testing.T) {
	out, err := run(t, "vocab", "dump")
	require.NoError(t, err)

	doc, err := vocabulary.Decode(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, doc.Symptoms, len(vocabulary.BuiltinSymptoms()))
	assert.Len(t, doc.Rules, len(vocabulary.BuiltinRules()))

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0644))

	out, err = run(t, "vocab", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, ": ok (")
}

func TestVocabDump_JSON(t *testing.T) {
	out, err := run(t, "vocab", "dump", "-f", "json")
	require.NoError(t, err)

	var doc map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["symptoms"], len(vocabulary.BuiltinSymptoms()))
	assert.Len(t, doc["rules"], len(vocabulary.BuiltinRules()))
}

func TestVocabValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`symptoms:
  - name: Hiccups
    weight: 400
    category: gastrointestinal
`), 0644))

	_, err := run(t, "vocab", "validate", path)
	assert.Error(t, err)
}

func TestAuditExportAndList(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")

	store, err := audit.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	ctx := t.Context()
	require.NoError(t, store.Record(ctx, &audit.Record{Kind: audit.KindAssessment, Event: "classified", Label: "URGENT", Score: 55}))
	require.NoError(t, store.Record(ctx, &audit.Record{Kind: audit.KindEscalation, Event: "armed", SessionID: "s-1"}))
	require.NoError(t, store.Close())

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("audit:\n  driver: sqlite\n  sqlite_path: "+dbPath+"\n"), 0644))

	out, err := run(t, "--config", configPath, "audit", "export")
	require.NoError(t, err)
	var export audit.Export
	require.NoError(t, json.Unmarshal([]byte(out), &export))
	assert.Equal(t, 2, export.Count)

	exportPath := filepath.Join(dir, "export.json")
	_, err = run(t, "--config", configPath, "audit", "export", "-o", exportPath)
	require.NoError(t, err)
	assert.FileExists(t, exportPath)

	out, err = run(t, "--config", configPath, "audit", "list", "--kind", "escalation")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "session=s-1")

	_, err = run(t, "--config", configPath, "audit", "list", "--kind", "other")
	assert.Error(t, err)
}

func TestAudit_Disabled(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("audit:\n  driver: none\n"), 0644))

	_, err := run(t, "--config", configPath, "audit", "list")
	assert.Error(t, err)
}

func TestSetup_RegisterStatusValidate(t *testing.T) {
	dir := t.TempDir()
	clientConfig := filepath.Join(dir, "client.json")
	binary := filepath.Join(dir, "mcp-server-lite")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	out, err := run(t, "setup", "register", "--client-config", clientConfig, "--binary", binary, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered "+setup.DefaultServerName)

	cfg, err := setup.LoadClientConfig(clientConfig)
	require.NoError(t, err)
	assert.Equal(t, binary, cfg.MCPServers[setup.DefaultServerName].Command)

	out, err = run(t, "setup", "status", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered:    yes")

	out, err = run(t, "setup", "validate", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Setup is valid")
}

func TestSetup_RequiresClientConfig(t *testing.T) {
	_, err := run(t, "setup", "status")
	assert.Error(t, err)
}

func TestSetup_ValidateUnregistered(t *testing.T) {
	clientConfig := filepath.Join(t.TempDir(), "client.json")
	_, err := run(t, "setup", "validate", "--client-config", clientConfig)
	assert.Error(t, err)
}
