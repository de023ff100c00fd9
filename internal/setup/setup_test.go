package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "mcp-server-lite")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestRegister_PreservesOtherEntries(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "client", "config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{
  "theme": "dark",
  "mcpServers": {"weather": {"command": "/usr/bin/weather"}}
}`), 0o644))

	entry, err := Register(Options{
		ConfigPath: configPath,
		BinaryPath: fakeBinary(t, dir),
		DataDir:    filepath.Join(dir, "data"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), entry.Env["TRIAGE_DATA_DIR"])

	config, err := LoadClientConfig(configPath)
	require.NoError(t, err)
	assert.Contains(t, config.MCPServers, "weather")
	assert.Contains(t, config.MCPServers, DefaultServerName)

	var raw map[string]any
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "dark", raw["theme"])
}

func TestRegister_RequiresConfigPath(t *testing.T) {
	_, err := Register(Options{BinaryPath: "/bin/true"})

	assert.Error(t, err)
}

func TestLoadClientConfig_Missing(t *testing.T) {
	config, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.json"))

	require.NoError(t, err)
	assert.Empty(t, config.MCPServers)
}

func TestGetStatusAndValidate(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	dataDir := filepath.Join(dir, "data")
	opts := Options{ConfigPath: configPath, BinaryPath: fakeBinary(t, dir), DataDir: dataDir}

	valid, issues := Validate(opts)
	assert.False(t, valid)
	assert.Len(t, issues, 1)

	_, err := Register(opts)
	require.NoError(t, err)

	status, err := GetStatus(opts)
	require.NoError(t, err)
	assert.True(t, status.Registered)
	assert.Equal(t, opts.BinaryPath, status.ServerPath)
	assert.Equal(t, dataDir, status.DataDir)

	valid, issues = Validate(opts)
	assert.True(t, valid, issues)
	assert.Len(t, issues, 1, "missing data directory is only a warning")

	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	valid, issues = Validate(opts)
	assert.True(t, valid)
	assert.Empty(t, issues)
}

func TestValidate_BadVocabulary(t *testing.T) {
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocabulary.yaml")
	require.NoError(t, os.WriteFile(vocabPath, []byte("symptoms:\n  - name: hiccups\n    weight: 400\n    category: general\n"), 0o644))

	opts := Options{
		ConfigPath:     filepath.Join(dir, "config.json"),
		BinaryPath:     fakeBinary(t, dir),
		DataDir:        dir,
		VocabularyFile: vocabPath,
	}
	_, err := Register(opts)
	require.NoError(t, err)

	valid, issues := Validate(opts)

	assert.False(t, valid)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Vocabulary file is invalid")
}
