package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"openboard/rowguard/pkg/cli"
	"openboard/rowguard/pkg/config"
	"openboard/rowguard/pkg/rls/audit"
)

var auditQueryFlags struct {
	userID     string
	table      string
	timeRange  string
	deniedOnly bool
	limit      int
	format     string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect recorded access decisions",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the audit database",
	Long: `Query persisted access records from the audit database.

Examples:
  # Latest records for one user
  rowguard audit query --user-id u-123

  # Denied accesses on one table
  rowguard audit query --table orders --denied-only

  # Records in a time range, as JSON
  rowguard audit query --time-range "2026-08-29T00:00:00Z/2026-08-30T00:00:00Z" --format json`,
	RunE: queryAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)

	auditQueryCmd.Flags().StringVar(&auditQueryFlags.userID, "user-id", "", "filter by user ID")
	auditQueryCmd.Flags().StringVar(&auditQueryFlags.table, "table", "", "filter by table name")
	auditQueryCmd.Flags().StringVar(&auditQueryFlags.timeRange, "time-range", "", "RFC 3339 interval (start/end)")
	auditQueryCmd.Flags().BoolVar(&auditQueryFlags.deniedOnly, "denied-only", false, "only denied accesses")
	auditQueryCmd.Flags().IntVar(&auditQueryFlags.limit, "limit", 0, "maximum records to return")
	auditQueryCmd.Flags().StringVar(&auditQueryFlags.format, "format", "text", "output format: text, json")
}

func queryAudit(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	storage, err := openAuditStorage(cfg, nil)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	defer storage.Close()

	filter := audit.QueryFilter{
		UserID:     auditQueryFlags.userID,
		TableName:  auditQueryFlags.table,
		DeniedOnly: auditQueryFlags.deniedOnly,
		Limit:      auditQueryFlags.limit,
	}

	if auditQueryFlags.timeRange != "" {
		parts := strings.Split(auditQueryFlags.timeRange, "/")
		if len(parts) != 2 {
			return fmt.Errorf("invalid time range format (expected: start/end)")
		}
		since, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		until, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}
		filter.Since = since
		filter.Until = until
	}

	records, err := storage.Query(context.Background(), filter)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}

	if auditQueryFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, records)
	}

	if len(records) == 0 {
		fmt.Println("No access records found.")
		return nil
	}

	fmt.Printf("%-20s %-12s %-16s %-8s %s\n", "RECORDED", "USER", "TABLE", "DENIED", "POLICIES")
	for _, r := range records {
		fmt.Printf("%-20s %-12s %-16s %-8t %s\n",
			r.RecordedAt.UTC().Format("2006-01-02 15:04:05"),
			r.UserID,
			r.TableName,
			r.AccessDenied,
			strings.Join(r.PoliciesApplied, ","))
	}
	fmt.Printf("\nTotal: %d records\n", len(records))
	return nil
}
