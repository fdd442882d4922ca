package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/loungecrasher/music-janitor/internal/plan"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a standalone summary report without executing anything",
	Long: `Rebuild the deletion plan and render it, plus current catalog
statistics, as a Markdown summary report. This never runs the executor
(no groups are reported as deleted) — it's the same report "mlc execute"
writes automatically after a run, on demand.

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "output directory for the report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "event log path to reference in the report")
}

func runReport(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")
	verbose := viper.GetBool("verbose")
	quiet := viper.GetBool("quiet")
	util.SetVerbose(verbose)
	util.SetQuiet(quiet)

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", dbPath)

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log")

	util.InfoLog("Building deletion plan...")
	planner := plan.New(&plan.Config{Store: db, Logger: report.NullLogger()})
	deletionPlan, err := planner.BuildPlan()
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	summaryReport, err := report.GenerateSummaryReport(db, deletionPlan, nil, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summaryReport.DatabasePath = dbPath

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		outputDir = filepath.Join("artifacts", "reports", time.Now().Format("20060102-150405"))
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Report saved to: %s", outputPath)
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Catalog files: %d (%d artists, %d albums)", summaryReport.TotalFiles, summaryReport.Artists, summaryReport.Albums)
	util.InfoLog("  Duplicate groups: %d (%d executable, %d blocked)", summaryReport.GroupsFound, summaryReport.GroupsExecutable, summaryReport.GroupsBlocked)
	if summaryReport.GroupsFound > 0 {
		util.InfoLog("  Bytes reclaimable: %d", summaryReport.BytesReclaimable)
	}

	return nil
}
