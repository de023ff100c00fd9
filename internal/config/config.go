package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/symptom-triage-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile creates a configuration manager that reads an explicit
// config file instead of searching the default paths. An empty path
// searches the defaults.
func NewManagerWithFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/symptom-triage/")
	}

	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// The file is optional; defaults and environment still apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults registers a default for every key so AutomaticEnv can
// override any of them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)

	// Triage defaults
	v.SetDefault("triage.escalation_delay", "10s")
	v.SetDefault("triage.fuzzy_threshold", 0.75)
	v.SetDefault("triage.session_ttl", "30m")

	v.SetDefault("vocabulary.source", "builtin")
	v.SetDefault("vocabulary.file", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "symptom_triage")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.memory_size", 1000)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "15m")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.sqlite_path", "triage-audit.db")
	v.SetDefault("audit.postgres_url", "")

	// Dispatch defaults
	v.SetDefault("dispatch.mode", "log")
	v.SetDefault("dispatch.endpoint", "")
	v.SetDefault("dispatch.api_key", "")
	v.SetDefault("dispatch.timeout", "10s")
	v.SetDefault("dispatch.rate_limit", 5)
	v.SetDefault("dispatch.retry_count", 3)
	v.SetDefault("dispatch.retry_interval", "500ms")
	v.SetDefault("dispatch.circuit_breaker.max_requests", 3)
	v.SetDefault("dispatch.circuit_breaker.interval", "60s")
	v.SetDefault("dispatch.circuit_breaker.timeout", "30s")
	v.SetDefault("dispatch.circuit_breaker.failure_threshold", 5)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("mcp.server_name", "symptom-triage")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.http_addr", ":8081")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetTriageConfig returns the classification pipeline settings
func (m *Manager) GetTriageConfig() *domain.TriageConfig {
	return &m.config.Triage
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return domain.NewValidationError("server.port", "must be between 1 and 65535", config.Server.Port)
	}

	if config.Triage.EscalationDelay <= 0 {
		return domain.NewValidationError("triage.escalation_delay", "must be positive", config.Triage.EscalationDelay)
	}
	if config.Triage.FuzzyThreshold <= 0 || config.Triage.FuzzyThreshold >= 1 {
		return domain.NewValidationError("triage.fuzzy_threshold", "must be between 0 and 1 exclusive", config.Triage.FuzzyThreshold)
	}
	if config.Triage.SessionTTL < 0 {
		return domain.NewValidationError("triage.session_ttl", "must not be negative", config.Triage.SessionTTL)
	}

	switch config.Vocabulary.Source {
	case "builtin":
	case "file":
		if config.Vocabulary.File == "" {
			return domain.NewValidationError("vocabulary.file", "is required when vocabulary.source is file", "")
		}
	case "postgres":
		if err := validateDatabase(config.Database); err != nil {
			return err
		}
	default:
		return domain.NewValidationError("vocabulary.source", "must be builtin, file or postgres", config.Vocabulary.Source)
	}

	switch config.Audit.Driver {
	case "none":
	case "sqlite":
		if config.Audit.SQLitePath == "" {
			return domain.NewValidationError("audit.sqlite_path", "is required for the sqlite driver", "")
		}
	case "postgres":
		if config.Audit.PostgresURL == "" {
			return domain.NewValidationError("audit.postgres_url", "is required for the postgres driver", "")
		}
	default:
		return domain.NewValidationError("audit.driver", "must be sqlite, postgres or none", config.Audit.Driver)
	}

	switch config.Dispatch.Mode {
	case "log":
	case "http":
		if _, err := url.ParseRequestURI(config.Dispatch.Endpoint); err != nil {
			return domain.NewValidationError("dispatch.endpoint", "must be an absolute URL for http mode", config.Dispatch.Endpoint)
		}
	default:
		return domain.NewValidationError("dispatch.mode", "must be log or http", config.Dispatch.Mode)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewValidationError("logging.level", "unknown log level", config.Logging.Level)
	}

	if config.MCP.Transport != "stdio" && config.MCP.Transport != "http" {
		return domain.NewValidationError("mcp.transport", "must be stdio or http", config.MCP.Transport)
	}

	return nil
}

func validateDatabase(db domain.DatabaseConfig) error {
	if db.Host == "" {
		return domain.NewValidationError("database.host", "is required", "")
	}
	if db.Database == "" {
		return domain.NewValidationError("database.database", "is required", "")
	}
	if db.Username == "" {
		return domain.NewValidationError("database.username", "is required", "")
	}
	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database configuration as a postgres URL, the
// form golang-migrate expects.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     db.Database,
		RawQuery: "sslmode=" + url.QueryEscape(db.SSLMode),
	}
	return u.String()
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
