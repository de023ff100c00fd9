package audit

import (
	"fmt"

	"github.com/symptom-triage-server/internal/domain"
)

// Open selects a store from configuration.
func Open(config domain.AuditConfig) (Store, error) {
	switch config.Driver {
	case "", "none":
		return NopStore{}, nil
	case "sqlite":
		return NewSQLiteStore(config.SQLitePath)
	case "postgres":
		return NewPostgresStoreFromURL(config.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", config.Driver)
	}
}
