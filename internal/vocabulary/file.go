package vocabulary

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/symptom-triage-server/internal/domain"
)

// Document is the on-disk YAML layout of a vocabulary file.
type Document struct {
	Symptoms []domain.SymptomEntry   `yaml:"symptoms"`
	Rules    []domain.RuleDefinition `yaml:"rules"`
}

// FileSource reads a vocabulary from a YAML file. The file is parsed once
// and cached for both loader calls.
type FileSource struct {
	path string
	doc  *Document
}

// NewFileSource creates a source for the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) document() (*Document, error) {
	if s.doc != nil {
		return s.doc, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary file: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	s.doc = doc
	return doc, nil
}

// LoadSymptoms implements domain.VocabularySource.
func (s *FileSource) LoadSymptoms(ctx context.Context) ([]domain.SymptomEntry, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	return doc.Symptoms, nil
}

// LoadRules implements domain.VocabularySource.
func (s *FileSource) LoadRules(ctx context.Context) ([]domain.RuleDefinition, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// Decode parses a YAML vocabulary document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to decode vocabulary: %w", err)
	}
	return &doc, nil
}

// Encode writes the vocabulary as a YAML document that Decode can read back.
func Encode(w io.Writer, v *Vocabulary) error {
	doc := Document{
		Symptoms: v.Entries(),
		Rules:    v.Definitions(),
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode vocabulary: %w", err)
	}
	return enc.Close()
}
