package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/symptom-triage-server/internal/database"
	"github.com/symptom-triage-server/internal/repository"
	"github.com/symptom-triage-server/internal/vocabulary"
)

func newVocabCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect and manage the symptom vocabulary",
	}
	cmd.AddCommand(newVocabValidateCommand(), newVocabDumpCommand(), newVocabSeedCommand())
	return cmd
}

func newVocabValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a vocabulary file parses and compiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vocab, err := loadVocabulary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stats := vocab.Stats()
			writeLine(cmd.OutOrStdout(), "%s: ok (%v entries, %v distinct symptoms, %v rules)",
				args[0], stats["entries"], stats["distinct_names"], stats["rules"])
			return nil
		},
	}
}

func newVocabDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the vocabulary as YAML or JSON",
		Long: `Print the builtin vocabulary, or a vocabulary file after validation.
The YAML output is a valid vocabulary file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("vocabulary")
			format, _ := cmd.Flags().GetString("format")

			vocab, err := loadVocabulary(cmd.Context(), path)
			if err != nil {
				return err
			}

			switch format {
			case "yaml":
				return vocabulary.Encode(cmd.OutOrStdout(), vocab)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"symptoms": vocab.Entries(), "rules": vocab.Definitions()})
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().String("vocabulary", "", "vocabulary YAML file; builtin when empty")
	cmd.Flags().StringP("format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func newVocabSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace the vocabulary stored in Postgres",
		Long: `Validate a vocabulary (builtin when --vocabulary is empty) and store it
in the configured database, replacing the current tables in one
transaction. Run "triagectl migrate up" first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("vocabulary")

			vocab, err := loadVocabulary(cmd.Context(), path)
			if err != nil {
				return err
			}

			m, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := commandLogger(cmd)

			db, err := database.NewConnection(cmd.Context(), database.ConfigFromDomain(*m.GetDatabaseConfig()), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewVocabularyRepository(db.Pool, logger)
			if err := repo.Replace(cmd.Context(), vocab.Entries(), vocab.Definitions()); err != nil {
				return err
			}

			writeLine(cmd.OutOrStdout(), "Stored %d symptoms and %d rules", len(vocab.Entries()), len(vocab.Rules()))
			return nil
		},
	}
	cmd.Flags().String("vocabulary", "", "vocabulary YAML file; builtin when empty")
	return cmd
}
