package domain

import (
	"context"
)

// Classifier turns symptom input into a classification. Implementations
// must be pure: same input and vocabulary, same result.
type Classifier interface {
	Classify(input SymptomInput) *ClassificationResult
}

// VocabularySource loads the raw symptom catalogue and rule definitions.
type VocabularySource interface {
	LoadSymptoms(ctx context.Context) ([]SymptomEntry, error)
	LoadRules(ctx context.Context) ([]RuleDefinition, error)
}

// RuleDefinition is the uncompiled form of a PatternRule as stored in
// files and databases.
type RuleDefinition struct {
	Pattern  string   `json:"pattern" yaml:"pattern"`
	Weight   int      `json:"weight" yaml:"weight"`
	Category Category `json:"category" yaml:"category"`
	Reason   string   `json:"reason" yaml:"reason"`
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetTriageConfig() *TriageConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
