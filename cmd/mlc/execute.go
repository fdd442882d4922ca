package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/loungecrasher/music-janitor/internal/execute"
	"github.com/loungecrasher/music-janitor/internal/plan"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Back up and delete the files a fresh plan marks for deletion",
	Long: `Rebuild the deletion plan against the current catalog, then run the
two-phase executor over every executable group: back up each delete
target under --backup-root/backup_<timestamp>/, and only remove the
original once its backup has completed.

Groups the validator blocks are skipped entirely and reported as such.
Use --dry-run to see what would happen without touching any file.`,
	RunE: runExecute,
}

func init() {
	executeCmd.Flags().Bool("dry-run", false, "simulate the run without copying or deleting anything")
	executeCmd.Flags().String("backup-root", "artifacts/backups", "directory under which a timestamped backup folder is created")
	executeCmd.Flags().Bool("nas-mode", false, "force NAS-tuned concurrency settings; auto-detected from the database and backup-root paths when unset")
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dbPath := viper.GetString("db")
	concurrency := viper.GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = 4
	}
	verbose := viper.GetBool("verbose")
	quiet := viper.GetBool("quiet")
	util.SetVerbose(verbose)
	util.SetQuiet(quiet)

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupRoot, _ := cmd.Flags().GetString("backup-root")

	var nasModeOverride *bool
	if cmd.Flags().Changed("nas-mode") {
		v, _ := cmd.Flags().GetBool("nas-mode")
		nasModeOverride = &v
	}
	if nasCfg, err := util.AutoTuneForPath(dbPath, backupRoot, nasModeOverride, concurrency); err != nil {
		util.WarnLog("NAS auto-tune failed, using requested concurrency: %v", err)
	} else {
		concurrency = nasCfg.Concurrency
		if nasCfg.IsNASMode {
			util.InfoLog("%s", util.FormatNASSettings(nasCfg))
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	logger, err := newEventLogger(quiet, verbose)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()

	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}

	util.InfoLog("Rebuilding deletion plan from: %s", dbPath)
	planner := plan.New(&plan.Config{Store: db, Logger: logger})
	deletionPlan, err := planner.BuildPlan()
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	if len(deletionPlan.Groups) == 0 {
		util.SuccessLog("No duplicate groups found — nothing to execute.")
		return nil
	}

	util.InfoLog("=== Execution ===")
	util.InfoLog("Groups: %d", len(deletionPlan.Groups))
	util.InfoLog("Concurrency: %d workers", concurrency)
	if dryRun {
		util.InfoLog("Dry run: no files will be backed up or deleted")
	}

	executor := execute.New(&execute.Config{
		Concurrency: concurrency,
		DryRun:      dryRun,
		Logger:      logger,
	})

	start := time.Now()
	stats, err := executor.Execute(ctx, deletionPlan, backupRoot)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	duration := time.Since(start)

	util.InfoLog("")
	util.SuccessLog("=== Execution Summary ===")
	util.InfoLog("Total time: %v", duration.Round(time.Millisecond))
	util.InfoLog("Groups: %d succeeded, %d failed, %d skipped", stats.GroupsSucceeded, stats.GroupsFailed, stats.GroupsSkipped)
	util.InfoLog("Files deleted: %d", stats.FilesDeleted)
	if stats.FilesFailed > 0 {
		util.WarnLog("Files failed: %d", stats.FilesFailed)
	}
	util.InfoLog("Bytes freed: %s", humanize.Bytes(uint64(stats.BytesFreed)))
	if !dryRun {
		util.InfoLog("Backup directory: %s", stats.BackupDir)
	}
	if stats.Cancelled {
		util.WarnLog("Execution was cancelled before all groups were processed")
	}

	for _, outcome := range stats.Outcomes {
		if len(outcome.Errors) == 0 {
			continue
		}
		util.WarnLog("Group %s had errors:", outcome.GroupID)
		for _, e := range outcome.Errors {
			util.WarnLog("  - %s", e)
		}
	}

	util.InfoLog("")
	util.InfoLog("Generating summary report...")
	summaryReport, err := report.GenerateSummaryReport(db, deletionPlan, stats, logger.Path())
	if err != nil {
		util.WarnLog("Failed to generate summary report: %v", err)
		return nil
	}
	summaryReport.DatabasePath = dbPath

	reportPath := filepath.Join("artifacts", "reports", time.Now().Format("20060102-150405"), "summary.md")
	if err := report.WriteMarkdownReport(summaryReport, reportPath); err != nil {
		util.WarnLog("Failed to write summary report: %v", err)
	} else {
		util.SuccessLog("Summary report saved to: %s", reportPath)
	}

	return nil
}
