package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show current catalog statistics",
	Long: `Recompute and display a snapshot of the library catalog: total files,
total size, format breakdown, and distinct artists/albums. The recomputed
snapshot is not persisted; "mlc scan" records one to library_stats after
each run, and --history shows the most recently recorded one.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().Bool("history", false, "show the most recently recorded snapshot instead of recomputing one")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if history, _ := cmd.Flags().GetBool("history"); history {
		latest, err := db.LatestStatistics()
		if err != nil {
			return fmt.Errorf("failed to read statistics history: %w", err)
		}
		if latest == nil {
			util.InfoLog("No statistics have been recorded yet. Run 'mlc scan' first.")
			return nil
		}
		printStats(latest)
		if latest.HasLastIndex {
			util.InfoLog("Last indexed: %s (took %s)", latest.LastIndexTime.Format("2006-01-02 15:04:05"), latest.IndexDuration.Round(1e6))
		}
		return nil
	}

	stats, err := db.Statistics()
	if err != nil {
		return fmt.Errorf("failed to compute statistics: %w", err)
	}
	printStats(stats)
	return nil
}

func printStats(stats *store.LibraryStatistics) {
	util.InfoLog("=== Catalog Statistics ===")
	util.InfoLog("Total files: %d", stats.TotalFiles)
	util.InfoLog("Total size:  %s", humanize.Bytes(uint64(stats.TotalSize)))
	util.InfoLog("Artists:     %d", stats.ArtistsCount)
	util.InfoLog("Albums:      %d", stats.AlbumsCount)

	if len(stats.FormatsBreakdown) == 0 {
		return
	}
	util.InfoLog("")
	util.InfoLog("By format:")
	formats := make([]string, 0, len(stats.FormatsBreakdown))
	for f := range stats.FormatsBreakdown {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return stats.FormatsBreakdown[formats[i]] > stats.FormatsBreakdown[formats[j]] })
	for _, f := range formats {
		util.InfoLog("  %-6s %d", f, stats.FormatsBreakdown[f])
	}
}
