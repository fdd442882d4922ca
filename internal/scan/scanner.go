// Package scan implements the indexer (C3): it reconciles the audio files
// found under a root directory with the persisted library index, reading
// tags and computing fingerprints for anything new or changed.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loungecrasher/music-janitor/internal/fingerprint"
	"github.com/loungecrasher/music-janitor/internal/meta"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
	"github.com/schollz/progressbar/v3"
)

// AudioExtensions are the supported audio file extensions, lowercase with
// the leading dot.
var AudioExtensions = []string{
	".mp3", ".flac", ".m4a", ".wav", ".ogg", ".opus", ".aiff", ".aif",
}

// DefaultBatchSize is the number of reconciled records buffered before a
// flush to the Store.
const DefaultBatchSize = 300

// Indexer discovers audio files under a root directory and reconciles
// them into the Store.
type Indexer struct {
	store        *store.Store
	reader       meta.TagReader
	extensions   map[string]bool
	concurrency  int
	batchSize    int
	logger       *report.EventLogger
	mbNormalizer meta.MusicBrainzNormalizer
}

// Config configures an Indexer.
type Config struct {
	Store          *store.Store
	Reader         meta.TagReader // defaults to meta.NewReader()
	AdditionalExts []string
	Concurrency    int
	BatchSize      int
	Logger         *report.EventLogger
	// MBNormalizer, when set, canonicalizes an artist name via MusicBrainz
	// before it is hashed. Disabled by default — nil skips the lookup
	// entirely so indexing never depends on network access.
	MBNormalizer meta.MusicBrainzNormalizer
}

// New creates an Indexer.
func New(cfg *Config) *Indexer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	reader := cfg.Reader
	if reader == nil {
		reader = meta.NewReader()
	}

	extMap := make(map[string]bool)
	for _, ext := range AudioExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	for _, ext := range cfg.AdditionalExts {
		extMap[strings.ToLower(ext)] = true
	}

	return &Indexer{
		store:        cfg.Store,
		reader:       reader,
		extensions:   extMap,
		concurrency:  cfg.Concurrency,
		batchSize:    cfg.BatchSize,
		logger:       cfg.Logger,
		mbNormalizer: cfg.MBNormalizer,
	}
}

// Result summarizes one Index run.
type Result struct {
	FilesWalked  int
	FilesIndexed int // inserted or updated
	FilesSkipped int // unchanged, skip-eligible
	Errors       []error
}

// Index walks root and reconciles every supported audio file into the
// Store. forceRescan ignores the (mtime, size) skip decision and
// re-extracts every file regardless of whether it appears unchanged.
func (ix *Indexer) Index(ctx context.Context, root string, forceRescan bool) (*Result, error) {
	util.InfoLog("Indexing: %s", root)

	result := &Result{Errors: make([]error, 0)}

	util.InfoLog("Loading existing index...")
	existing, err := ix.store.AllActivePathSet()
	if err != nil {
		return nil, fmt.Errorf("load existing index: %w", err)
	}
	util.InfoLog("Loaded %d indexed files", len(existing))

	paths := make(chan string, 256)
	records := make(chan *store.LibraryFile, 1024)

	var walked, indexed, skipped, errored atomic.Int64
	var errMu sync.Mutex

	isTTY := util.IsTerminal(os.Stdout.Fd())
	var bar *progressbar.ProgressBar
	if isTTY && !util.IsQuiet() {
		barWidth := util.GetTerminalWidth() - 40
		if barWidth < 10 {
			barWidth = 10
		} else if barWidth > 60 {
			barWidth = 60
		}
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSetWidth(barWidth),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				w := walked.Load()
				if bar != nil {
					bar.Describe(fmt.Sprintf("Indexing | %d walked | %d indexed | %d skipped", w, indexed.Load(), skipped.Load()))
					bar.Set64(w)
				}
			}
		}
	}()

	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		batch := make([]*store.LibraryFile, 0, ix.batchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			n, errs := ix.store.UpsertBatch(batch)
			indexed.Add(int64(n))
			if len(errs) > 0 {
				errMu.Lock()
				result.Errors = append(result.Errors, errs...)
				errMu.Unlock()
				errored.Add(int64(len(errs)))
			}
			batch = batch[:0]
		}
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case rec, ok := <-records:
				if !ok {
					flush()
					return
				}
				batch = append(batch, rec)
				if len(batch) >= ix.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()

	var workerWg sync.WaitGroup
	for i := 0; i < ix.concurrency; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for path := range paths {
				select {
				case <-ctx.Done():
					return
				default:
				}

				walked.Add(1)
				rec, skip, err := ix.reconcile(path, existing, forceRescan)
				if err != nil {
					util.ErrorLog("Failed to index %s: %v", path, err)
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("%s: %w", path, err))
					errMu.Unlock()
					errored.Add(1)
					continue
				}
				if skip {
					skipped.Add(1)
					continue
				}
				select {
				case records <- rec:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			util.WarnLog("Cannot access %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !ix.isSupported(path) {
			return nil
		}
		select {
		case paths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	close(paths)
	workerWg.Wait()
	close(records)
	writerWg.Wait()
	cancelProgress()
	if bar != nil {
		bar.Finish()
	}

	result.FilesWalked = int(walked.Load())
	result.FilesIndexed = int(indexed.Load())
	result.FilesSkipped = int(skipped.Load())

	if walkErr != nil && walkErr != context.Canceled {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.SuccessLog("Index complete: %d walked, %d indexed, %d skipped, %d errors",
		result.FilesWalked, result.FilesIndexed, result.FilesSkipped, len(result.Errors))

	return result, nil
}

// reconcile decides what to do with one discovered path: skip (unchanged),
// or build a LibraryFile ready for upsert.
func (ix *Indexer) reconcile(path string, existing map[string]*store.LibraryFile, forceRescan bool) (rec *store.LibraryFile, skip bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat: %w", err)
	}

	if !forceRescan {
		if prev, ok := existing[path]; ok {
			if prev.FileSize == info.Size() && prev.FileMtime.Equal(info.ModTime()) {
				return nil, true, nil
			}
		}
	}

	tags, err := ix.reader.Read(path)
	if err != nil {
		return nil, false, fmt.Errorf("read tags: %w", err)
	}

	hashArtist := tags.Artist
	if ix.mbNormalizer != nil && strings.TrimSpace(tags.Artist) != "" {
		if canonical, err := ix.mbNormalizer.NormalizeArtistName(context.Background(), tags.Artist); err == nil && canonical != "" {
			hashArtist = canonical
		}
	}

	metaHash := fingerprint.Metadata(hashArtist, tags.Title, path)
	contentHash, _ := fingerprint.Content(path, fingerprint.DefaultChunkSize)

	f := &store.LibraryFile{
		FilePath:        path,
		Filename:        filepath.Base(path),
		Artist:          tags.Artist,
		Title:           tags.Title,
		Album:           tags.Album,
		Year:            tags.Year(),
		FileFormat:      strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		FileSize:        info.Size(),
		MetadataHash:    metaHash,
		FileContentHash: contentHash,
		FileMtime:       info.ModTime(),
	}
	if tags.DurationMs > 0 {
		f.Duration = float64(tags.DurationMs) / 1000.0
		f.HasDuration = true
	}

	if ix.logger != nil {
		ix.logger.LogScan(metaHash, path, info.Size())
	}

	return f, false, nil
}

func (ix *Indexer) isSupported(path string) bool {
	return ix.extensions[strings.ToLower(filepath.Ext(path))]
}

// Verify checks every active record's file_path against the filesystem
// and soft-deletes any that no longer resolve to a regular file. It
// returns (missing, markedInactive); missing counts every absent path
// found, and markedInactive equals missing once the batched soft-delete
// succeeds (0 if it fails).
func (ix *Indexer) Verify(ctx context.Context, root string) (missing int, markedInactive int, err error) {
	paths, err := ix.store.AllActivePaths()
	if err != nil {
		return 0, 0, fmt.Errorf("list active paths: %w", err)
	}

	var goneePaths []string
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		default:
		}
		info, statErr := os.Stat(p)
		if statErr != nil || !info.Mode().IsRegular() {
			goneePaths = append(goneePaths, p)
		}
	}

	if len(goneePaths) == 0 {
		return 0, 0, nil
	}

	if err := ix.store.SoftDeleteBatch(goneePaths); err != nil {
		return len(goneePaths), 0, fmt.Errorf("soft delete missing files: %w", err)
	}

	util.InfoLog("Verification: %d of %d active files are missing from disk; marked inactive", len(goneePaths), len(paths))
	return len(goneePaths), len(goneePaths), nil
}

// GetSupportedExtensions returns the extensions this Indexer recognizes.
func (ix *Indexer) GetSupportedExtensions() []string {
	exts := make([]string, 0, len(ix.extensions))
	for ext := range ix.extensions {
		exts = append(exts, ext)
	}
	return exts
}
