package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tap/pkg/cli"
	"mercator-hq/tap/pkg/report"
	"mercator-hq/tap/pkg/report/retention"
)

var pruneFlags struct {
	days       int
	maxRecords int64
	archive    bool
	dryRun     bool
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy now",
	Long: `Delete capture records older than the retention period and, when
retention.max_records is set, the oldest records beyond that count.

Flags override the retention section of the configuration file.

Examples:
  # Apply the configured retention policy
  tap prune

  # Keep one week, archiving deleted records first
  tap prune --days 7 --archive

  # Show what age-based pruning would delete
  tap prune --dry-run`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneFlags.days, "days", -1, "override retention days (0 keeps records forever)")
	pruneCmd.Flags().Int64Var(&pruneFlags.maxRecords, "max-records", -1, "override maximum record count (0 is unlimited)")
	pruneCmd.Flags().BoolVar(&pruneFlags.archive, "archive", false, "archive records before deleting them")
	pruneCmd.Flags().BoolVar(&pruneFlags.dryRun, "dry-run", false, "count records older than the retention period without deleting")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	retentionCfg := cfg.RetentionOptions()
	if pruneFlags.days >= 0 {
		retentionCfg.RetentionDays = pruneFlags.days
	}
	if pruneFlags.maxRecords >= 0 {
		retentionCfg.MaxRecords = pruneFlags.maxRecords
	}
	if pruneFlags.archive {
		retentionCfg.ArchiveBeforeDelete = true
	}

	store, err := openStorage(cfg)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if pruneFlags.dryRun {
		if retentionCfg.RetentionDays == 0 {
			fmt.Fprintln(out, "Retention is disabled (days = 0); no records are expired.")
			return nil
		}
		cutoff := time.Now().AddDate(0, 0, -retentionCfg.RetentionDays)
		n, err := store.Count(ctx, &report.Query{EndTime: &cutoff})
		if err != nil {
			return cli.NewCommandError("prune", fmt.Errorf("count failed: %w", err))
		}
		fmt.Fprintf(out, "%d records older than %s would be deleted\n", n, cutoff.Format(time.RFC3339))
		return nil
	}

	deleted, err := retention.NewPruner(store, retentionCfg).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}
	fmt.Fprintf(out, "✓ Deleted %d records\n", deleted)
	return nil
}
