package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/symptom-triage-server/internal/config"
	"github.com/symptom-triage-server/internal/database"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
		Long: `Run the vocabulary and audit migrations against the configured database.
Migrations are read from --path, then database.migrations_path when that
directory exists, and otherwise from the copies built into the binary.`,
	}
	cmd.PersistentFlags().String("path", "", "migrations directory")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := migrationRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()

			if err := runner.Up(cmd.Context()); err != nil {
				return err
			}
			return printVersion(cmd, runner)
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")

			runner, err := migrationRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()

			if err := runner.Down(cmd.Context(), steps); err != nil {
				return err
			}
			return printVersion(cmd, runner)
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := migrationRunner(cmd)
			if err != nil {
				return err
			}
			defer runner.Close()
			return printVersion(cmd, runner)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func migrationRunner(cmd *cobra.Command) (*database.MigrationRunner, error) {
	m, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString("path")
	return database.NewMigrationRunner(m.GetDatabaseURL(), migrationsPath(path, m), commandLogger(cmd))
}

// migrationsPath returns "" to select the embedded migrations.
func migrationsPath(flag string, m *config.Manager) string {
	if flag != "" {
		return flag
	}
	configured := m.GetDatabaseConfig().MigrationsPath
	if configured == "" {
		return ""
	}
	if info, err := os.Stat(configured); err == nil && info.IsDir() {
		return configured
	}
	return ""
}

func printVersion(cmd *cobra.Command, runner *database.MigrationRunner) error {
	v, dirty, err := runner.Version()
	if err != nil {
		writeLine(cmd.OutOrStdout(), "schema version: none")
		return nil
	}
	if dirty {
		writeLine(cmd.OutOrStdout(), "schema version: %d (dirty)", v)
		return nil
	}
	writeLine(cmd.OutOrStdout(), "schema version: %d", v)
	return nil
}
