// Package cli implements triagectl, the operator command line for the
// triage pipeline.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/domain"
	"github.com/symptom-triage-server/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// NewRootCommand builds the triagectl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "triagectl",
		Short: "Operate the symptom triage pipeline",
		Long: `triagectl classifies symptom descriptions offline, manages the
symptom vocabulary, runs database migrations, exports the audit log and
registers the MCP server with desktop clients.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "path to the configuration file")
	root.PersistentFlags().String("log-level", "warn", "log level for diagnostic output")

	root.AddCommand(
		newClassifyCommand(),
		newVocabCommand(),
		newMigrateCommand(),
		newAuditCommand(),
		newSetupCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "triagectl %s (%s)\n", version, commit)
		},
	}
}

// loadConfig reads the configuration named by --config, or searches the
// default locations.
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		m   *config.Manager
		err error
	)
	if path != "" {
		m, err = config.NewManagerWithFile(path)
	} else {
		m, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return m, nil
}

// commandLogger logs to stderr so command output stays machine readable.
func commandLogger(cmd *cobra.Command) *logrus.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := logging.New(domain.LoggingConfig{Level: level, Format: "text", Output: "stderr"})
	if err != nil {
		logger = logrus.New()
		logger.SetOutput(cmd.ErrOrStderr())
	}
	return logger
}

func writeLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
