package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/symptom-triage-server/internal/audit"
)

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit log",
	}
	cmd.PersistentFlags().String("driver", "", "override audit.driver: sqlite or postgres")
	cmd.PersistentFlags().String("sqlite-path", "", "override audit.sqlite_path")

	export := &cobra.Command{
		Use:   "export",
		Short: "Write every audit record as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			store, err := openAuditStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := store.ExportJSON(cmd.Context(), w); err != nil {
				return err
			}
			if output != "" && output != "-" {
				count, _ := store.Count(cmd.Context())
				writeLine(cmd.ErrOrStderr(), "Exported %d records to %s", count, output)
			}
			return nil
		},
	}
	export.Flags().StringP("output", "o", "-", "output file; - writes to stdout")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print recent audit records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			kind, _ := cmd.Flags().GetString("kind")
			limit, _ := cmd.Flags().GetInt("limit")

			if kind != "" && kind != string(audit.KindAssessment) && kind != string(audit.KindEscalation) {
				return fmt.Errorf("kind must be assessment or escalation, got %q", kind)
			}

			store, err := openAuditStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), audit.Filter{
				SessionID: sessionID,
				Kind:      audit.Kind(kind),
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range records {
				line := fmt.Sprintf("%s  %-10s %-10s", r.CreatedAt.Format(time.RFC3339), r.Kind, r.Event)
				if r.Label != "" {
					line += fmt.Sprintf(" %s/%d", r.Label, r.Score)
				}
				if r.SessionID != "" {
					line += " session=" + r.SessionID
				}
				writeLine(out, "%s", strings.TrimRight(line, " "))
			}
			return nil
		},
	}
	list.Flags().String("session", "", "only records for this session")
	list.Flags().String("kind", "", "assessment or escalation")
	list.Flags().Int("limit", 20, "maximum records to print")

	cmd.AddCommand(export, list)
	return cmd
}

func openAuditStore(cmd *cobra.Command) (audit.Store, error) {
	m, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg := m.GetConfig().Audit

	if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
		cfg.Driver = driver
	}
	if path, _ := cmd.Flags().GetString("sqlite-path"); path != "" {
		cfg.SQLitePath = path
	}
	if cfg.Driver == "" || cfg.Driver == "none" {
		return nil, fmt.Errorf("audit log is disabled in the configuration")
	}
	return audit.Open(cfg)
}
