package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/loungecrasher/music-janitor/internal/plan"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Find duplicate groups in the catalog and build a validated deletion plan",
	Long: `Group catalog files that share an exact metadata or content fingerprint,
rank each group with the quality scorer to choose a keeper, and run the
seven-point validator over every group.

The plan is never applied by this command — it is exported as a JSON
snapshot and a flat CSV (one row per keep/delete action) for review.
"mlc execute" does not read these files: it rebuilds the plan from the
catalog before backing up and deleting files.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().String("out", "", "output directory for plan.json/plan.csv (default: artifacts/plans/<timestamp>)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")
	verbose := viper.GetBool("verbose")
	quiet := viper.GetBool("quiet")
	util.SetVerbose(verbose)
	util.SetQuiet(quiet)

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

	util.InfoLog("Building deletion plan from: %s", dbPath)

	planner := plan.New(&plan.Config{Store: db, Logger: logger})

	start := time.Now()
	deletionPlan, err := planner.BuildPlan()
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	duration := time.Since(start)

	var executable, blocked int
	var bytesReclaimable int64
	for _, g := range deletionPlan.Groups {
		if deletionPlan.Executable(g.GroupID) {
			executable++
		} else {
			blocked++
		}
		for _, d := range g.DeleteFiles {
			bytesReclaimable += d.FileSize
		}
	}

	util.SuccessLog("Planning complete in %v", duration.Round(time.Millisecond))
	util.InfoLog("  Duplicate groups found: %d", len(deletionPlan.Groups))
	util.InfoLog("  Executable:             %d", executable)
	util.InfoLog("  Blocked by validation:  %d", blocked)
	util.InfoLog("  Reclaimable:            %s", humanize.Bytes(uint64(bytesReclaimable)))

	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		outDir = filepath.Join("artifacts", "plans", time.Now().Format("20060102-150405"))
	}

	jsonPath := filepath.Join(outDir, "plan.json")
	if err := plan.WriteJSON(deletionPlan, jsonPath); err != nil {
		return fmt.Errorf("write plan json: %w", err)
	}
	csvPath := filepath.Join(outDir, "plan.csv")
	if err := plan.WriteCSV(deletionPlan, csvPath); err != nil {
		return fmt.Errorf("write plan csv: %w", err)
	}

	util.InfoLog("")
	util.InfoLog("Plan written to:")
	util.InfoLog("  %s", jsonPath)
	util.InfoLog("  %s", csvPath)

	if len(deletionPlan.Groups) == 0 {
		util.SuccessLog("No duplicate groups found — library is already deduplicated!")
		return nil
	}

	util.InfoLog("")
	util.InfoLog("Next step: mlc execute --db %s", dbPath)

	return nil
}
