// Package vet implements the vetter (C5): it runs the duplicate detector
// over every audio file in an import folder, partitions the results into
// new/uncertain/duplicate buckets, and persists a session summary.
package vet

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loungecrasher/music-janitor/internal/detect"
	"github.com/loungecrasher/music-janitor/internal/report"
	"github.com/loungecrasher/music-janitor/internal/scan"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
)

// Vetter applies a Detector over an import folder and records the
// outcome.
type Vetter struct {
	store    *store.Store
	detector *detect.Detector
	logger   *report.EventLogger
}

// Config configures a Vetter.
type Config struct {
	Store    *store.Store
	Detector *detect.Detector
	Logger   *report.EventLogger
}

// New creates a Vetter.
func New(cfg *Config) *Vetter {
	return &Vetter{store: cfg.Store, detector: cfg.Detector, logger: cfg.Logger}
}

// Candidate pairs one import-folder file with its classification.
type Candidate struct {
	Path   string
	Verdict *detect.Verdict
}

// SessionResult is the outcome of one vetting pass.
type SessionResult struct {
	ImportFolder  string
	ThresholdUsed float64
	VettedAt      time.Time
	New           []Candidate
	Uncertain     []Candidate
	Duplicates    []Candidate
	Errors        []error
	Session       *store.VettingSession
	PersistErr    error
}

// TotalFiles is the number of files classified (successes only).
func (r *SessionResult) TotalFiles() int {
	return len(r.New) + len(r.Uncertain) + len(r.Duplicates)
}

// Vet walks importFolder, classifies every supported audio file, and
// persists a VettingSession recording the outcome. A failure to persist
// the session is returned via SessionResult.PersistErr but does not fail
// the vet itself — the classification results are still usable.
func (v *Vetter) Vet(ctx context.Context, importFolder string, threshold float64) (*SessionResult, error) {
	util.InfoLog("Vetting import folder: %s", importFolder)

	result := &SessionResult{ImportFolder: importFolder, ThresholdUsed: threshold, VettedAt: time.Now()}

	var paths []string
	walkErr := filepath.WalkDir(importFolder, func(path string, d fs.DirEntry, err error) error {
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
			if path != importFolder && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if isSupportedExt(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk import folder: %w", walkErr)
	}

	verdicts, err := v.detector.ClassifyBatch(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("classify batch: %w", err)
	}

	for i, p := range paths {
		verdict := verdicts[i]
		cand := Candidate{Path: p, Verdict: verdict}
		var bucket string
		switch {
		// Uncertain is evaluated before certain/is_duplicate, so a
		// borderline match never gets silently promoted to a confident
		// duplicate.
		case verdict.IsUncertain():
			bucket = "uncertain"
			result.Uncertain = append(result.Uncertain, cand)
		case verdict.IsCertain():
			bucket = "duplicate"
			result.Duplicates = append(result.Duplicates, cand)
		default:
			bucket = "new"
			result.New = append(result.New, cand)
		}
		if v.logger != nil {
			v.logger.LogVet(p, bucket, string(verdict.MatchType), verdict.Confidence)
		}
	}

	session := &store.VettingSession{
		ImportFolder:     importFolder,
		TotalFiles:       result.TotalFiles(),
		DuplicatesFound:  len(result.Duplicates),
		NewSongs:         len(result.New),
		UncertainMatches: len(result.Uncertain),
		ThresholdUsed:    threshold,
		VettedAt:         result.VettedAt,
	}
	if err := v.store.AppendVettingSession(session); err != nil {
		util.WarnLog("Failed to persist vetting session: %v", err)
		result.PersistErr = err
	} else {
		result.Session = session
	}

	util.SuccessLog("Vetting complete: %d new, %d uncertain, %d duplicates",
		len(result.New), len(result.Uncertain), len(result.Duplicates))

	return result, nil
}

func isSupportedExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range scan.AudioExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ExportTextLists writes new_songs.txt, uncertain.txt, and duplicates.txt
// under dir, one file path per line. It pre-checks that dir is writable
// before attempting any write, so a mid-export permission failure on the
// second file doesn't leave a half-written set.
func (v *Vetter) ExportTextLists(result *SessionResult, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	probe := filepath.Join(dir, ".mlc-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("export dir %s is not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(probe)

	lists := map[string][]Candidate{
		"new_songs.txt":  result.New,
		"uncertain.txt":  result.Uncertain,
		"duplicates.txt": result.Duplicates,
	}
	for name, cands := range lists {
		if err := writePathList(filepath.Join(dir, name), cands); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func writePathList(path string, cands []Candidate) error {
	var sb strings.Builder
	for _, c := range cands {
		sb.WriteString(c.Path)
		sb.WriteString("\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// ExportCSV writes a one-row-per-file session report: path, bucket,
// confidence, match type. This supplements the three plaintext lists
// with a machine-readable summary of the same session.
func (v *Vetter) ExportCSV(result *SessionResult, path string) error {
	var sb strings.Builder
	sb.WriteString("path,bucket,confidence,match_type\n")
	writeRow := func(bucket string, cands []Candidate) {
		for _, c := range cands {
			fmt.Fprintf(&sb, "%q,%s,%.4f,%s\n", c.Path, bucket, c.Verdict.Confidence, c.Verdict.MatchType)
		}
	}
	writeRow("new", result.New)
	writeRow("uncertain", result.Uncertain)
	writeRow("duplicate", result.Duplicates)
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// DeleteDuplicates removes every file classified as a certain duplicate
// from disk. It is confirm-gated: callers must pass confirmed=true, and
// dryRun simulates the removal while still reporting accurate counts.
// Deletion-of-duplicates acts on the import-folder copies being vetted,
// not on the library files they match — nothing in the Store is touched.
func (v *Vetter) DeleteDuplicates(result *SessionResult, confirmed, dryRun bool) (removed int, errs []error) {
	if !confirmed {
		return 0, []error{fmt.Errorf("delete duplicates requires explicit confirmation")}
	}
	for _, c := range result.Duplicates {
		if dryRun {
			removed++
			continue
		}
		if err := os.Remove(c.Path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", c.Path, err))
			continue
		}
		removed++
	}
	return removed, errs
}
