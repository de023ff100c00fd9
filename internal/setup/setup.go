// Package setup registers the triage MCP server with desktop MCP clients
// and checks that a standalone installation is usable.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/symptom-triage-server/internal/vocabulary"
)

// DefaultServerName is the key the server is registered under.
const DefaultServerName = "symptom-triage"

// ClientConfig is the mcpServers configuration file shared by desktop MCP
// clients.
type ClientConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`

	// other preserves top-level keys this package does not manage.
	other map[string]json.RawMessage
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	ConfigPath     string // client configuration file
	ServerName     string // defaults to DefaultServerName
	BinaryPath     string // path to mcp-server-lite; searched when empty
	DataDir        string // exported as TRIAGE_DATA_DIR
	VocabularyFile string // exported as TRIAGE_VOCABULARY_FILE
}

func (o Options) serverName() string {
	if o.ServerName == "" {
		return DefaultServerName
	}
	return o.ServerName
}

// LoadClientConfig loads a client configuration. A missing file yields an
// empty configuration.
func LoadClientConfig(configPath string) (*ClientConfig, error) {
	config := &ClientConfig{
		MCPServers: make(map[string]MCPServerConfig),
		other:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config.other); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := config.other["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(config.other, "mcpServers")
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}
	return config, nil
}

// SaveClientConfig writes the configuration, keeping unmanaged keys.
func SaveClientConfig(configPath string, config *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(config.other)+1)
	for k, v := range config.other {
		out[k] = v
	}
	out["mcpServers"] = config.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or updates the triage server entry in the client
// configuration.
func Register(opts Options) (*MCPServerConfig, error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("client config path is required")
	}

	config, err := LoadClientConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath, err = findBinary("mcp-server-lite")
		if err != nil {
			return nil, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := MCPServerConfig{
		Command: binaryPath,
		Env:     make(map[string]string),
	}
	if opts.DataDir != "" {
		entry.Env["TRIAGE_DATA_DIR"] = opts.DataDir
	}
	if opts.VocabularyFile != "" {
		entry.Env["TRIAGE_VOCABULARY_FILE"] = opts.VocabularyFile
	}
	config.MCPServers[opts.serverName()] = entry

	if err := SaveClientConfig(opts.ConfigPath, config); err != nil {
		return nil, err
	}
	return &entry, nil
}

// findBinary attempts to find the server binary in common locations.
func findBinary(binaryName string) (string, error) {
	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + binaryName,
		"./bin/" + binaryName,
		filepath.Join(home, ".local", "bin", binaryName),
		"/usr/local/bin/" + binaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", binaryName)
}

// Status represents the current setup status.
type Status struct {
	ConfigPath     string
	Registered     bool
	ServerPath     string
	DataDir        string
	VocabularyFile string
	Issues         []string
}

// GetStatus inspects the client configuration and the data directory.
func GetStatus(opts Options) (*Status, error) {
	status := &Status{ConfigPath: opts.ConfigPath, Issues: []string{}}

	config, err := LoadClientConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if entry, ok := config.MCPServers[opts.serverName()]; ok {
		status.Registered = true
		status.ServerPath = entry.Command
		status.DataDir = entry.Env["TRIAGE_DATA_DIR"]
		status.VocabularyFile = entry.Env["TRIAGE_VOCABULARY_FILE"]

		if _, err := os.Stat(entry.Command); os.IsNotExist(err) {
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", entry.Command))
		}
	}

	if status.DataDir == "" {
		status.DataDir = DefaultDataDir()
	}
	if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
	}

	return status, nil
}

// Validate checks that the registered server can start: the binary is
// executable and a configured vocabulary file compiles.
func Validate(opts Options) (bool, []string) {
	status, err := GetStatus(opts)
	if err != nil {
		return false, []string{fmt.Sprintf("Cannot load client config: %v", err)}
	}
	if !status.Registered {
		return false, []string{fmt.Sprintf("%s is not registered in %s", opts.serverName(), opts.ConfigPath)}
	}

	issues := status.Issues
	if info, err := os.Stat(status.ServerPath); err == nil && info.Mode()&0111 == 0 {
		issues = append(issues, fmt.Sprintf("Server binary is not executable: %s", status.ServerPath))
	}

	if status.VocabularyFile != "" {
		if err := ValidateVocabularyFile(status.VocabularyFile); err != nil {
			issues = append(issues, fmt.Sprintf("Vocabulary file is invalid: %v", err))
		}
	}

	return allWarnings(issues), issues
}

// ValidateVocabularyFile parses and compiles a vocabulary file.
func ValidateVocabularyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := vocabulary.Decode(f)
	if err != nil {
		return err
	}
	_, err = vocabulary.Compile(doc.Symptoms, doc.Rules)
	return err
}

// allWarnings returns true if all issues are just warnings (not errors).
func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(issue, "will be created") {
			return false
		}
	}
	return true
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".symptom-triage")
}
