package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/loungecrasher/music-janitor/internal/meta"
	"github.com/loungecrasher/music-janitor/internal/musicbrainz"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/scan"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var forceRescan bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Index the source directory into the library catalog",
	Long: `Walk the source directory, fingerprint every audio file found, and
reconcile the result into the library_index table.

A file already in the catalog is skipped unless its size or modification
time changed, or --force is given. Files previously indexed but no
longer present on disk are left alone — run "mlc verify" to reconcile
those.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&forceRescan, "force", false, "re-read tags and fingerprints for every file, even unchanged ones")
	scanCmd.Flags().Bool("watch", false, "keep running, reconciling incrementally as files change")
	scanCmd.Flags().Duration("watch-debounce", scan.DefaultWatchDebounce, "quiet period after the last filesystem event before reconciling, with --watch")
	scanCmd.Flags().Bool("musicbrainz", false, "canonicalize artist names via MusicBrainz before fingerprinting (disabled by default, requires network)")
	scanCmd.Flags().Bool("musicbrainz-preload", false, "preload every distinct artist already in the catalog into the MusicBrainz cache before indexing")
	scanCmd.Flags().Bool("nas-mode", false, "force NAS-tuned concurrency/retry settings; auto-detected from the source and database paths when unset")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	source := viper.GetString("source")
	if source == "" {
		return fmt.Errorf("source directory is required (set source in config or MLC_SOURCE)")
	}

	concurrency := viper.GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = 8
	}

	dbPath := viper.GetString("db")
	verbose := viper.GetBool("verbose")
	quiet := viper.GetBool("quiet")

	util.SetVerbose(verbose)
	util.SetQuiet(quiet)

	if _, err := os.Stat(source); os.IsNotExist(err) {
		return fmt.Errorf("source directory does not exist: %s", source)
	}

	var nasModeOverride *bool
	if cmd.Flags().Changed("nas-mode") {
		v, _ := cmd.Flags().GetBool("nas-mode")
		nasModeOverride = &v
	}
	if nasCfg, err := util.AutoTuneForPath(source, dbPath, nasModeOverride, concurrency); err != nil {
		util.WarnLog("NAS auto-tune failed, using requested concurrency: %v", err)
	} else {
		concurrency = nasCfg.Concurrency
		if nasCfg.IsNASMode {
			util.InfoLog("%s", util.FormatNASSettings(nasCfg))
		}
	}

	util.InfoLog("Opening database: %s", dbPath)

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

	if !meta.CheckFFprobeAvailable() {
		util.WarnLog("ffprobe not found in PATH - using tag library only")
		util.WarnLog("Install ffmpeg for best results: https://ffmpeg.org/")
	}

	var mbNormalizer meta.MusicBrainzNormalizer
	enableMB, _ := cmd.Flags().GetBool("musicbrainz")
	if enableMB {
		mbClient := musicbrainz.NewClient()
		defer mbClient.Close()
		mbCache := musicbrainz.NewCache(db.DB(), mbClient)
		if err := mbCache.EnsureSchema(); err != nil {
			util.WarnLog("Failed to initialize MusicBrainz cache: %v", err)
		} else {
			mbNormalizer = mbCache
			util.InfoLog("MusicBrainz canonicalization enabled (rate-limited to 1 req/s)")

			preload, _ := cmd.Flags().GetBool("musicbrainz-preload")
			if preload {
				artists, err := db.DistinctArtists()
				if err != nil {
					util.WarnLog("Failed to list artists for preload: %v", err)
				} else if len(artists) > 0 {
					util.InfoLog("Preloading %d artists from MusicBrainz (this will take a while)...", len(artists))
					if err := mbCache.PreloadArtists(ctx, artists); err != nil {
						util.WarnLog("Preload failed: %v", err)
					}
				}
			}
		}
	}

	util.InfoLog("Indexing: %s (concurrency=%d, force=%v)", source, concurrency, forceRescan)

	indexer := scan.New(&scan.Config{
		Store:        db,
		Concurrency:  concurrency,
		Logger:       logger,
		MBNormalizer: mbNormalizer,
	})

	watch, _ := cmd.Flags().GetBool("watch")
	if watch {
		debounce, _ := cmd.Flags().GetDuration("watch-debounce")
		return indexer.Watch(ctx, source, debounce)
	}

	start := time.Now()
	result, err := indexer.Index(ctx, source, forceRescan)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	duration := time.Since(start)

	util.SuccessLog("Indexing complete in %v", duration.Round(time.Millisecond))
	util.InfoLog("  Files walked:  %d", result.FilesWalked)
	util.InfoLog("  Files indexed: %d", result.FilesIndexed)
	util.InfoLog("  Files skipped: %d", result.FilesSkipped)
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
		for _, e := range result.Errors {
			util.DebugLog("    %v", e)
		}
	}

	stats, err := db.Statistics()
	if err == nil {
		util.InfoLog("")
		util.InfoLog("Catalog: %d active files across %d artists, %d albums", stats.TotalFiles, stats.ArtistsCount, stats.AlbumsCount)
		db.RecordStatistics(stats, time.Now(), duration)
	}

	util.InfoLog("")
	util.InfoLog("Next step: mlc vet (to screen an import folder) or mlc plan (to find duplicates already in the catalog)")

	return nil
}

// newEventLogger builds an EventLogger at the level implied by the verbose/quiet flags.
func newEventLogger(quiet, verbose bool) (*report.EventLogger, error) {
	logLevel := report.LevelInfo
	if quiet {
		logLevel = report.LevelWarning
	} else if verbose {
		logLevel = report.LevelDebug
	}
	return report.NewEventLogger("artifacts", logLevel)
}
