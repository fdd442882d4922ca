package main

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/loungecrasher/music-janitor/internal/plan"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/score"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Rebuild and display the deletion plan without writing or touching anything",
	Long: `Rebuild the deletion plan against the current catalog and print every
duplicate group: the chosen keeper, the files marked for deletion, and
the validator's verdict on whether the group is executable.

This never writes a plan.json/plan.csv snapshot — use "mlc plan" for
that. Use this to eyeball the plan before running "mlc execute".`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().Bool("blocked-only", false, "show only groups the validator has blocked")
	showCmd.Flags().Bool("verbose", false, "show per-file audio properties alongside each group")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	blockedOnly, _ := cmd.Flags().GetBool("blocked-only")
	verbose, _ := cmd.Flags().GetBool("verbose")

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	planner := plan.New(&plan.Config{Store: db, Logger: report.NullLogger()})
	deletionPlan, err := planner.BuildPlan()
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	if len(deletionPlan.Groups) == 0 {
		util.SuccessLog("No duplicate groups found — library is already deduplicated!")
		return nil
	}

	util.InfoLog("=== Deletion Plan ===")
	util.InfoLog("Database: %s", dbPath)
	util.InfoLog("")

	executable, blocked := 0, 0
	for _, g := range deletionPlan.Groups {
		if deletionPlan.Executable(g.GroupID) {
			executable++
		} else {
			blocked++
		}
	}
	util.InfoLog("Summary: %d groups (%d executable, %d blocked)", len(deletionPlan.Groups), executable, blocked)

	for _, g := range deletionPlan.Groups {
		executable := deletionPlan.Executable(g.GroupID)
		if blockedOnly && executable {
			continue
		}

		fmt.Println()
		status := "EXECUTABLE"
		if !executable {
			status = "BLOCKED"
		}
		util.InfoLog("Group %s [%s] (%s)", g.GroupID, status, g.Reason)

		fmt.Printf("  KEEP   %s\n", g.KeepFile.FilePath)
		if verbose && g.KeepProps != nil {
			printProps(g.KeepProps)
		}

		var bytesReclaimed int64
		for i, d := range g.DeleteFiles {
			fmt.Printf("  DELETE %s (%s)\n", d.FilePath, humanize.Bytes(uint64(d.FileSize)))
			bytesReclaimed += d.FileSize
			if verbose && i < len(g.DeleteProps) {
				printProps(g.DeleteProps[i])
			}
		}
		util.InfoLog("  Reclaims: %s", humanize.Bytes(uint64(bytesReclaimed)))

		if !executable {
			for _, r := range deletionPlan.ResultsFor(g.GroupID) {
				if r.Severity == "error" {
					util.WarnLog("  blocked by [%s]: %s", r.Check, r.Message)
				}
			}
		}
	}

	fmt.Println()
	if !blockedOnly {
		util.InfoLog("To see only blocked groups: mlc show --blocked-only")
	}
	util.InfoLog("To write a plan.json/plan.csv snapshot: mlc plan")
	util.InfoLog("To execute: mlc execute")

	return nil
}

func printProps(p *score.AudioProperties) {
	desc := fmt.Sprintf("%s, score %.1f", p.Format, p.QualityScore)
	if p.IsLossless {
		desc += ", lossless"
	}
	if p.HasBitrate {
		desc += fmt.Sprintf(", %dkbps", p.BitrateKbps)
	}
	if p.HasSampleRate {
		desc += fmt.Sprintf(", %dHz", p.SampleRateHz)
	}
	fmt.Printf("         %s\n", desc)
}
