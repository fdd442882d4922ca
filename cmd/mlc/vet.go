package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/loungecrasher/music-janitor/internal/detect"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/loungecrasher/music-janitor/internal/vet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var vetCmd = &cobra.Command{
	Use:   "vet <import-folder>",
	Short: "Screen an import folder against the catalog before adding it",
	Long: `Classify every audio file under an import folder as new, an uncertain
fuzzy match, or a certain duplicate of something already in the catalog.

Nothing in the catalog or on disk is touched unless --delete-duplicates is
given, in which case certain duplicates found in the import folder (not
the catalog copies they matched) are removed after backing up nothing —
pass --confirm to actually delete, otherwise the count is only reported.`,
	Args: cobra.ExactArgs(1),
	RunE: runVet,
}

func init() {
	vetCmd.Flags().Float64("threshold", detect.DefaultFuzzyThreshold, "fuzzy match similarity cutoff for tier-3 classification")
	vetCmd.Flags().Bool("no-fuzzy", false, "disable tier-3 fuzzy matching; classify by exact hash only")
	vetCmd.Flags().Bool("no-content-hash", false, "disable tier-2 exact content-hash matching")
	vetCmd.Flags().String("export", "", "directory to write new_songs.txt/uncertain.txt/duplicates.txt and a session CSV")
	vetCmd.Flags().Bool("delete-duplicates", false, "remove files classified as certain duplicates from the import folder")
	vetCmd.Flags().Bool("confirm", false, "required alongside --delete-duplicates to actually delete (otherwise dry-run)")
	rootCmd.AddCommand(vetCmd)
}

func runVet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	importFolder := args[0]

	dbPath := viper.GetString("db")
	verbose := viper.GetBool("verbose")
	quiet := viper.GetBool("quiet")
	util.SetVerbose(verbose)
	util.SetQuiet(quiet)

	threshold, _ := cmd.Flags().GetFloat64("threshold")
	noFuzzy, _ := cmd.Flags().GetBool("no-fuzzy")
	noContentHash, _ := cmd.Flags().GetBool("no-content-hash")

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

	detector := detect.New(&detect.Config{
		Store:          db,
		FuzzyThreshold: threshold,
		UseFuzzy:       !noFuzzy,
		UseContentHash: !noContentHash,
	})

	vetter := vet.New(&vet.Config{Store: db, Detector: detector, Logger: logger})

	start := time.Now()
	result, err := vetter.Vet(ctx, importFolder, threshold)
	if err != nil {
		return fmt.Errorf("vet failed: %w", err)
	}
	duration := time.Since(start)

	util.SuccessLog("Vetting complete in %v", duration.Round(time.Millisecond))
	util.InfoLog("  New:        %d", len(result.New))
	util.InfoLog("  Uncertain:  %d", len(result.Uncertain))
	util.InfoLog("  Duplicates: %d", len(result.Duplicates))
	if result.PersistErr != nil {
		util.WarnLog("Session summary was not persisted: %v", result.PersistErr)
	}

	if exportDir, _ := cmd.Flags().GetString("export"); exportDir != "" {
		if err := vetter.ExportTextLists(result, exportDir); err != nil {
			util.WarnLog("Failed to export text lists: %v", err)
		}
		csvPath := filepath.Join(exportDir, "vet_session.csv")
		if err := vetter.ExportCSV(result, csvPath); err != nil {
			util.WarnLog("Failed to export CSV: %v", err)
		} else {
			util.InfoLog("Session report: %s", csvPath)
		}
	}

	if deleteDupes, _ := cmd.Flags().GetBool("delete-duplicates"); deleteDupes {
		confirm, _ := cmd.Flags().GetBool("confirm")
		removed, errs := vetter.DeleteDuplicates(result, true, !confirm)
		if !confirm {
			util.InfoLog("Dry-run: would remove %d duplicate files (pass --confirm to actually delete)", removed)
		} else {
			util.SuccessLog("Removed %d duplicate files from %s", removed, importFolder)
		}
		for _, e := range errs {
			util.ErrorLog("%v", e)
		}
	}

	return nil
}
