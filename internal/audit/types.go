// Package audit stores an append-only trail of triage assessments and
// escalation transitions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Kind separates assessment records from escalation records.
type Kind string

const (
	KindAssessment Kind = "assessment"
	KindEscalation Kind = "escalation"
)

// Record is one audit entry. Escalation records carry the scheduler event
// name in Event; assessment records use "classified" or "assessed".
type Record struct {
	ID             int64     `json:"id,omitempty"`
	Kind           Kind      `json:"kind"`
	Event          string    `json:"event"`
	SessionID      string    `json:"session_id,omitempty"`
	EscalationID   string    `json:"escalation_id,omitempty"`
	Source         string    `json:"source,omitempty"`
	Label          string    `json:"label,omitempty"`
	Score          int       `json:"score"`
	Confidence     int       `json:"confidence"`
	Reasons        []string  `json:"reasons,omitempty"`
	NormalizedText string    `json:"normalized_text,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	SessionID string
	Kind      Kind
	Limit     int
	Offset    int
}

const (
	defaultListLimit = 100
	maxExportLimit   = 1000000
)

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the interface for audit storage operations.
type Store interface {
	// Record appends an entry and assigns its ID and CreatedAt.
	Record(ctx context.Context, rec *Record) error

	// List returns entries newest first.
	List(ctx context.Context, filter Filter) ([]*Record, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int64, error)

	// CountFiltered counts entries matching the filter's session and kind.
	CountFiltered(ctx context.Context, filter Filter) (int64, error)

	// ExportJSON writes every entry to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const selectColumns = `id, kind, event, session_id, escalation_id, source,
	label, score, confidence, reasons, normalized_text, detail, created_at`

// scanRecord scans a row into a Record.
func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var kind, reasons string

	err := s.Scan(
		&rec.ID, &kind, &rec.Event, &rec.SessionID, &rec.EscalationID, &rec.Source,
		&rec.Label, &rec.Score, &rec.Confidence, &reasons, &rec.NormalizedText,
		&rec.Detail, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = Kind(kind)
	if reasons != "" {
		if err := json.Unmarshal([]byte(reasons), &rec.Reasons); err != nil {
			return nil, fmt.Errorf("failed to decode reasons: %w", err)
		}
	}
	return rec, nil
}

func encodeReasons(reasons []string) (string, error) {
	if len(reasons) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("failed to encode reasons: %w", err)
	}
	return string(data), nil
}

func writeExport(writer io.Writer, records []*Record) error {
	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(records),
		Records:    records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Record(ctx context.Context, rec *Record) error { return nil }
func (NopStore) List(ctx context.Context, filter Filter) ([]*Record, error) {
	return nil, nil
}
func (NopStore) Count(ctx context.Context) (int64, error) { return 0, nil }

func (NopStore) CountFiltered(ctx context.Context, filter Filter) (int64, error) { return 0, nil }
func (NopStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return writeExport(writer, nil)
}
func (NopStore) Close() error { return nil }
