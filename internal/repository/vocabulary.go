package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/domain"
)

// VocabularyRepository reads and writes the symptom catalogue and pattern
// rules in PostgreSQL. It satisfies domain.VocabularySource.
type VocabularyRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewVocabularyRepository creates a new vocabulary repository
func NewVocabularyRepository(db *pgxpool.Pool, logger *logrus.Logger) *VocabularyRepository {
	return &VocabularyRepository{
		db:  db,
		log: logger,
	}
}

// LoadSymptoms returns the catalogue in its stored order.
func (r *VocabularyRepository) LoadSymptoms(ctx context.Context) ([]domain.SymptomEntry, error) {
	query := `
		SELECT name, weight, category
		FROM symptoms
		ORDER BY position, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.log.WithError(err).Error("Failed to query symptoms")
		return nil, fmt.Errorf("querying symptoms: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SymptomEntry, error) {
		var e domain.SymptomEntry
		var category string
		if err := row.Scan(&e.Name, &e.Weight, &category); err != nil {
			return e, err
		}
		e.Category = domain.Category(category)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning symptoms: %w", err)
	}

	r.log.WithField("count", len(entries)).Debug("Loaded symptoms")
	return entries, nil
}

// LoadRules returns the pattern rules in their stored order.
func (r *VocabularyRepository) LoadRules(ctx context.Context) ([]domain.RuleDefinition, error) {
	query := `
		SELECT pattern, weight, category, reason
		FROM pattern_rules
		ORDER BY position, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.log.WithError(err).Error("Failed to query pattern rules")
		return nil, fmt.Errorf("querying pattern rules: %w", err)
	}

	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RuleDefinition, error) {
		var d domain.RuleDefinition
		var category string
		if err := row.Scan(&d.Pattern, &d.Weight, &category, &d.Reason); err != nil {
			return d, err
		}
		d.Category = domain.Category(category)
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning pattern rules: %w", err)
	}

	r.log.WithField("count", len(defs)).Debug("Loaded pattern rules")
	return defs, nil
}

// Replace swaps the stored vocabulary for the given one in a single
// transaction. Callers validate with vocabulary.Compile first.
func (r *VocabularyRepository) Replace(ctx context.Context, entries []domain.SymptomEntry, defs []domain.RuleDefinition) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pattern_rules`); err != nil {
			return fmt.Errorf("clearing pattern rules: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM symptoms`); err != nil {
			return fmt.Errorf("clearing symptoms: %w", err)
		}

		batch := &pgx.Batch{}
		for i, e := range entries {
			batch.Queue(`INSERT INTO symptoms (name, weight, category, position) VALUES ($1, $2, $3, $4)`,
				e.Name, e.Weight, string(e.Category), i)
		}
		for i, d := range defs {
			batch.Queue(`INSERT INTO pattern_rules (pattern, weight, category, reason, position) VALUES ($1, $2, $3, $4, $5)`,
				d.Pattern, d.Weight, string(d.Category), d.Reason, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting vocabulary: %w", err)
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to replace vocabulary")
		return err
	}

	r.log.WithFields(logrus.Fields{
		"symptoms": len(entries),
		"rules":    len(defs),
	}).Info("Vocabulary replaced")
	return nil
}
