// Package plan implements the deletion planner (C7): it groups duplicate
// library files by fingerprint axis, ranks each group with the quality
// scorer, and runs a seven-point validator over the resulting plan.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/loungecrasher/music-janitor/internal/meta"
	"github.com/loungecrasher/music-janitor/internal/score"
	"github.com/loungecrasher/music-janitor/internal/store"
	"github.com/loungecrasher/music-janitor/internal/util"
)

// ValidationSink receives one event per validator check result. *report.EventLogger
// satisfies this without internal/plan needing to import internal/report.
type ValidationSink interface {
	LogValidate(groupID, check, severity, message string) error
}

// DeletionGroup is one set of duplicate files: a keeper chosen by the
// quality scorer and the rest, marked for deletion.
type DeletionGroup struct {
	GroupID     string
	Reason      string // "exact_metadata_hash" or "exact_content_hash"
	KeepFile    *store.LibraryFile
	KeepProps   *score.AudioProperties
	DeleteFiles []*store.LibraryFile
	DeleteProps []*score.AudioProperties
}

// ValidationResult is one check outcome for one group.
type ValidationResult struct {
	GroupID  string
	Check    string
	Severity string // "error" or "warning"
	Message  string
}

// DeletionPlan is the full, validated plan for one planning run.
type DeletionPlan struct {
	CreatedAt         time.Time
	Groups            []*DeletionGroup
	ValidationResults []*ValidationResult
}

// Executable reports whether groupID has no error-severity validation
// result, i.e. whether the Executor may act on it.
func (p *DeletionPlan) Executable(groupID string) bool {
	for _, r := range p.ValidationResults {
		if r.GroupID == groupID && r.Severity == "error" {
			return false
		}
	}
	return true
}

// ResultsFor returns the validation results recorded for groupID.
func (p *DeletionPlan) ResultsFor(groupID string) []*ValidationResult {
	var out []*ValidationResult
	for _, r := range p.ValidationResults {
		if r.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out
}

// Planner constructs and validates deletion plans from the Store's
// duplicate groups.
type Planner struct {
	store  *store.Store
	reader meta.TagReader
	logger ValidationSink
}

// Config configures a Planner.
type Config struct {
	Store *store.Store
	// Reader defaults to meta.NewReader() when nil. Audio properties used
	// for quality scoring are not persisted in the library index, so the
	// Planner re-reads tags for every candidate file at plan time.
	Reader meta.TagReader
	Logger ValidationSink
}

// New creates a Planner.
func New(cfg *Config) *Planner {
	reader := cfg.Reader
	if reader == nil {
		reader = meta.NewReader()
	}
	return &Planner{store: cfg.Store, reader: reader, logger: cfg.Logger}
}

// BuildPlan discovers duplicate groups across both fingerprint axes, ranks
// each with the quality scorer, and validates the result. A file already
// placed in a metadata-hash group is not regrouped by content hash, so
// the same pair of files never appears in two groups at once.
func (p *Planner) BuildPlan() (*DeletionPlan, error) {
	plan := &DeletionPlan{CreatedAt: time.Now()}

	metaGroups, err := p.duplicateGroupsByColumn("metadata_hash", store.AxisMetadata)
	if err != nil {
		return nil, fmt.Errorf("group by metadata hash: %w", err)
	}
	contentGroups, err := p.duplicateGroupsByColumn("file_content_hash", store.AxisContent)
	if err != nil {
		return nil, fmt.Errorf("group by content hash: %w", err)
	}

	seen := make(map[int64]bool)
	addGroup := func(files []*store.LibraryFile, reason string) error {
		var fresh []*store.LibraryFile
		for _, f := range files {
			if seen[f.ID] {
				continue
			}
			fresh = append(fresh, f)
		}
		if len(fresh) < 2 {
			return nil
		}
		for _, f := range fresh {
			seen[f.ID] = true
		}
		group, err := p.rankGroup(fresh, reason)
		if err != nil {
			return err
		}
		plan.Groups = append(plan.Groups, group)
		return nil
	}

	for _, files := range metaGroups {
		if err := addGroup(files, "exact_metadata_hash"); err != nil {
			return nil, err
		}
	}
	for _, files := range contentGroups {
		if err := addGroup(files, "exact_content_hash"); err != nil {
			return nil, err
		}
	}

	for _, group := range plan.Groups {
		plan.ValidationResults = append(plan.ValidationResults, p.validate(group)...)
	}

	return plan, nil
}

// duplicateGroupsByColumn finds every set of 2+ active records sharing a
// non-sentinel value in column, grouped by that value. column is an
// internal constant, never caller-supplied, so no whitelist check applies.
func (p *Planner) duplicateGroupsByColumn(column string, axis store.HashAxis) (map[string][]*store.LibraryFile, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM library_index
		WHERE is_active = 1
		GROUP BY %s
		HAVING COUNT(*) > 1
	`, column, column)

	rows, err := p.store.DB().Query(query)
	if err != nil {
		return nil, fmt.Errorf("find duplicate %s groups: %w", column, err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups, err := p.store.GetBatchByHashes(hashes, axis)
	if err != nil {
		return nil, err
	}

	// Content-hash sentinels are not real content evidence. "*_HASH_FAILED_*"
	// is unique per source path, but "{size}_FILE_TOO_LARGE" depends only on
	// the size, so two oversized files of equal size share it; both kinds
	// are skipped here.
	out := make(map[string][]*store.LibraryFile)
	for h, files := range groups {
		if axis == store.AxisContent && (strings.Contains(h, "_HASH_FAILED_") || strings.HasSuffix(h, "_FILE_TOO_LARGE")) {
			continue
		}
		out[h] = files
	}
	return out, nil
}

// rankGroup reads audio properties for every file, scores them, and
// assembles a DeletionGroup with the Quality Scorer's keeper first.
func (p *Planner) rankGroup(files []*store.LibraryFile, reason string) (*DeletionGroup, error) {
	props := make([]*score.AudioProperties, len(files))
	byPath := make(map[string]*store.LibraryFile, len(files))
	for i, f := range files {
		props[i] = p.audioProperties(f)
		score.Score(props[i])
		byPath[f.FilePath] = f
	}

	keeperProps, restProps := score.RankGroup(props)
	if keeperProps == nil {
		return nil, fmt.Errorf("rank group: empty candidate set")
	}

	keepFile := byPath[keeperProps.Path]
	group := &DeletionGroup{
		GroupID:   groupID(keepFile),
		Reason:    reason,
		KeepFile:  keepFile,
		KeepProps: keeperProps,
	}
	for _, rp := range restProps {
		group.DeleteFiles = append(group.DeleteFiles, byPath[rp.Path])
		group.DeleteProps = append(group.DeleteProps, rp)
	}
	return group, nil
}

// groupID assigns a stable-for-the-run identifier: a timestamp plus the
// keeper's filename stem, so JSON/CSV exports of the same run
// cross-reference cleanly without a random component.
func groupID(keeper *store.LibraryFile) string {
	stem := strings.TrimSuffix(filepath.Base(keeper.FilePath), filepath.Ext(keeper.FilePath))
	stem = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, strings.ToLower(stem))
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), stem)
}

// audioProperties re-reads tags for f to derive the scoring-relevant
// properties the library index doesn't persist.
func (p *Planner) audioProperties(f *store.LibraryFile) *score.AudioProperties {
	ap := &score.AudioProperties{
		Path:        f.FilePath,
		Format:      f.FileFormat,
		FileSize:    f.FileSize,
		DurationS:   f.Duration,
		HasDuration: f.HasDuration,
	}
	if !f.FileMtime.IsZero() {
		ap.Mtime = f.FileMtime
		ap.HasMtime = true
	}

	tags, err := p.reader.Read(f.FilePath)
	if err != nil {
		util.WarnLog("Could not re-read tags for scoring %s: %v", f.FilePath, err)
		return ap
	}
	if tags.BitrateKbps > 0 {
		ap.BitrateKbps = tags.BitrateKbps
		ap.HasBitrate = true
	}
	if tags.SampleRate > 0 {
		ap.SampleRateHz = tags.SampleRate
		ap.HasSampleRate = true
	}
	ap.Channels = tags.Channels
	if tags.VBR {
		ap.BitrateMode = score.BitrateVBR
	} else if tags.BitrateKbps > 0 {
		ap.BitrateMode = score.BitrateCBR
	}
	return ap
}

// validate runs the seven-point validator over one group.
func (p *Planner) validate(g *DeletionGroup) []*ValidationResult {
	var results []*ValidationResult
	errf := func(check, msg string) {
		results = append(results, &ValidationResult{GroupID: g.GroupID, Check: check, Severity: "error", Message: msg})
		if p.logger != nil {
			p.logger.LogValidate(g.GroupID, check, "error", msg)
		}
	}
	warnf := func(check, msg string) {
		results = append(results, &ValidationResult{GroupID: g.GroupID, Check: check, Severity: "warning", Message: msg})
		if p.logger != nil {
			p.logger.LogValidate(g.GroupID, check, "warning", msg)
		}
	}

	// 1. Keeper exists.
	if g.KeepFile == nil || strings.TrimSpace(g.KeepFile.FilePath) == "" {
		errf("keeper_exists", "keep_file is empty")
	} else if info, err := os.Stat(g.KeepFile.FilePath); err != nil || !info.Mode().IsRegular() {
		errf("keeper_exists", fmt.Sprintf("keep_file %s does not resolve to a regular file", g.KeepFile.FilePath))
	}

	// 2. Deletions non-empty.
	if len(g.DeleteFiles) == 0 {
		errf("deletions_nonempty", "delete_files is empty")
	}

	// 3. Quality sanity: a delete with a higher bitrate than the keeper.
	if g.KeepProps != nil && g.KeepProps.HasBitrate {
		for i, dp := range g.DeleteProps {
			if dp != nil && dp.HasBitrate && dp.BitrateKbps > g.KeepProps.BitrateKbps {
				warnf("quality_sanity", fmt.Sprintf("delete candidate %s has a higher bitrate (%d kbps) than the keeper (%d kbps)",
					g.DeleteFiles[i].FilePath, dp.BitrateKbps, g.KeepProps.BitrateKbps))
			}
		}
	}

	// 4. Delete paths exist.
	for _, d := range g.DeleteFiles {
		if info, err := os.Stat(d.FilePath); err != nil || !info.Mode().IsRegular() {
			errf("delete_paths_exist", fmt.Sprintf("delete path %s does not resolve to a regular file", d.FilePath))
		}
	}

	// 5. Not self-deletion.
	if g.KeepFile != nil {
		keepResolved := resolvePath(g.KeepFile.FilePath)
		for _, d := range g.DeleteFiles {
			if resolvePath(d.FilePath) == keepResolved {
				errf("not_self_deletion", fmt.Sprintf("keep_file and a delete target resolve to the same path: %s", g.KeepFile.FilePath))
			}
		}
	}

	// 6. Permissions: parent dir writable and file itself writable.
	for _, d := range g.DeleteFiles {
		dir := filepath.Dir(d.FilePath)
		if !util.IsPathWritable(dir) {
			errf("permissions", fmt.Sprintf("parent directory %s is not writable", dir))
		}
		if !util.IsPathWritable(d.FilePath) {
			errf("permissions", fmt.Sprintf("delete target %s is not writable", d.FilePath))
		}
	}

	// 7. Backup space: free_space(parent_of_first_delete) >= 2*sum(size(delete_files)).
	if len(g.DeleteFiles) > 0 {
		var total int64
		for _, d := range g.DeleteFiles {
			total += d.FileSize
		}
		free, err := freeSpace(filepath.Dir(g.DeleteFiles[0].FilePath))
		if err != nil {
			warnf("backup_space", fmt.Sprintf("could not determine free space: %v", err))
		} else if free < 2*total {
			warnf("backup_space", fmt.Sprintf("free space (%d bytes) may be insufficient for a safe backup of %d bytes", free, total))
		}
	}

	return results
}

func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func freeSpace(dir string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
