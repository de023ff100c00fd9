package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/symptom-triage-server/internal/setup"
)

func newSetupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the standalone MCP server with a desktop client",
	}
	cmd.PersistentFlags().String("client-config", "", "path to the client's mcpServers JSON file (required)")
	cmd.PersistentFlags().String("name", setup.DefaultServerName, "server key in mcpServers")
	_ = cmd.MarkPersistentFlagRequired("client-config")

	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the server entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := setupOptions(cmd)
			opts.BinaryPath, _ = cmd.Flags().GetString("binary")
			opts.DataDir, _ = cmd.Flags().GetString("data-dir")
			opts.VocabularyFile, _ = cmd.Flags().GetString("vocabulary")

			if opts.VocabularyFile != "" {
				abs, err := filepath.Abs(opts.VocabularyFile)
				if err != nil {
					return err
				}
				if err := setup.ValidateVocabularyFile(abs); err != nil {
					return fmt.Errorf("vocabulary file is invalid: %w", err)
				}
				opts.VocabularyFile = abs
			}

			entry, err := setup.Register(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			writeLine(out, "Registered %s in %s", opts.ServerName, opts.ConfigPath)
			writeLine(out, "  command: %s", entry.Command)
			for k, v := range entry.Env {
				writeLine(out, "  %s=%s", k, v)
			}
			writeLine(out, "Restart the client to load the server.")
			return nil
		},
	}
	register.Flags().String("binary", "", "path to mcp-server-lite; searched when empty")
	register.Flags().String("data-dir", "", "data directory for the audit log and exports")
	register.Flags().String("vocabulary", "", "vocabulary YAML file")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the registered entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := setupOptions(cmd)
			st, err := setup.GetStatus(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			writeLine(out, "Client config: %s", st.ConfigPath)
			if !st.Registered {
				writeLine(out, "Registered:    no")
				return nil
			}
			writeLine(out, "Registered:    yes")
			writeLine(out, "Server:        %s", st.ServerPath)
			writeLine(out, "Data dir:      %s", st.DataDir)
			if st.VocabularyFile != "" {
				writeLine(out, "Vocabulary:    %s", st.VocabularyFile)
			}
			for _, issue := range st.Issues {
				writeLine(out, "  ! %s", issue)
			}
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check that the registered server can start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := setupOptions(cmd)
			ok, issues := setup.Validate(opts)
			for _, issue := range issues {
				writeLine(cmd.OutOrStdout(), "  ! %s", issue)
			}
			if !ok {
				return fmt.Errorf("setup is not valid")
			}
			writeLine(cmd.OutOrStdout(), "Setup is valid")
			return nil
		},
	}

	cmd.AddCommand(register, status, validate)
	return cmd
}

func setupOptions(cmd *cobra.Command) setup.Options {
	configPath, _ := cmd.Flags().GetString("client-config")
	name, _ := cmd.Flags().GetString("name")
	return setup.Options{ConfigPath: configPath, ServerName: name}
}
