package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/service"
	"github.com/symptom-triage-server/internal/vocabulary"
)

func newClassifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a symptom description offline",
		Long: `Classify free text or a list of symptoms with the builtin vocabulary or
a vocabulary file. Nothing is audited and no escalation is scheduled.`,
		Example: `  triagectl classify "crushing chest pain and sweating"
  triagectl classify --symptom "Chest pain" --symptom Sweating --format json
  triagectl classify --source voice "chesst pain"`,
		RunE: runClassify,
	}

	cmd.Flags().StringSlice("symptom", nil, "symptom name; repeatable")
	cmd.Flags().String("source", "typed", "input source: typed or voice")
	cmd.Flags().String("vocabulary", "", "vocabulary YAML file; builtin when empty")
	cmd.Flags().Float64("fuzzy-threshold", service.DefaultFuzzyThreshold, "similarity a voice token must exceed")
	cmd.Flags().StringP("format", "f", "text", "output format: text or json")
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	symptoms, _ := cmd.Flags().GetStringSlice("symptom")
	sourceFlag, _ := cmd.Flags().GetString("source")
	vocabPath, _ := cmd.Flags().GetString("vocabulary")
	threshold, _ := cmd.Flags().GetFloat64("fuzzy-threshold")
	format, _ := cmd.Flags().GetString("format")

	source, err := domain.ParseInputSource(sourceFlag)
	if err != nil {
		return err
	}

	vocab, err := loadVocabulary(cmd.Context(), vocabPath)
	if err != nil {
		return err
	}

	classifier := service.NewClassifier(vocab, threshold, commandLogger(cmd))
	result := classifier.Classify(domain.SymptomInput{
		Text:     strings.Join(args, " "),
		Symptoms: symptoms,
		Source:   source,
	})

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		writeLine(out, "%s (score %d, confidence %d%%)", result.Label, result.Score, result.Confidence)
		for _, reason := range result.Reasons {
			writeLine(out, "  - %s", reason)
		}
		if len(result.UnmatchedTokens) > 0 {
			writeLine(out, "Unmatched: %s", strings.Join(result.UnmatchedTokens, ", "))
		}
		writeLine(out, "%s %s", result.SuggestedAction.Message, result.SuggestedAction.Timeline)
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func loadVocabulary(ctx context.Context, path string) (*vocabulary.Vocabulary, error) {
	if path == "" {
		return vocabulary.Builtin(), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	vocab, err := vocabulary.Load(ctx, vocabulary.NewFileSource(path))
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	return vocab, nil
}
