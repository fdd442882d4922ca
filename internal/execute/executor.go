// Package execute implements the deletion planner's execution phase
// (§4.7): for every executable group in a DeletionPlan, back up every
// delete target before removing it, and never removes anything whose
// backup did not complete successfully.
package execute

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"github.com/loungecrasher/music-janitor/internal/plan"
	"github.com/loungecrasher/music-janitor/internal/util"
)

// EventSink receives one event per deleted file. *report.EventLogger
// satisfies this without internal/execute needing to import internal/report.
type EventSink interface {
	LogExecute(fileKey, srcPath, destPath, action string, bytesWritten int64, duration time.Duration, err error) error
}

// Executor runs the backup-then-delete pipeline over a DeletionPlan.
type Executor struct {
	concurrency int
	dryRun      bool
	bufferSize  int
	retryConfig *util.RetryConfig
	logger      EventSink
}

// Config configures an Executor.
type Config struct {
	Concurrency int
	DryRun      bool
	BufferSize  int // 0 = use default
	RetryConfig *util.RetryConfig
	Logger      EventSink
}

// New creates an Executor.
func New(cfg *Config) *Executor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128 * 1024
	}
	retryCfg := cfg.RetryConfig
	if retryCfg == nil {
		retryCfg = util.DefaultRetryConfig()
	}
	return &Executor{
		concurrency: cfg.Concurrency,
		dryRun:      cfg.DryRun,
		bufferSize:  cfg.BufferSize,
		retryConfig: retryCfg,
		logger:      cfg.Logger,
	}
}

// GroupOutcome records what happened to one group.
type GroupOutcome struct {
	GroupID     string
	Skipped     bool // validator marked the group non-executable
	FilesBackedUp int
	FilesDeleted  int
	BytesFreed    int64
	Errors        []string
}

// DeletionStats is the post-run report for one Execute call.
type DeletionStats struct {
	BackupDir      string
	GroupsTotal    int
	GroupsSucceeded int
	GroupsFailed    int
	GroupsSkipped   int
	FilesDeleted    int
	FilesFailed     int
	BytesFreed      int64
	Outcomes        []*GroupOutcome
	Cancelled       bool
}

// Execute runs every executable group in p, backing up each delete target
// under backupRoot/backup_<timestamp>/ before removing the original. A
// group that fails validation is counted as skipped, never touched. A
// failure in either phase marks that group partially failed and execution
// continues with the next group. Cancellation is checked before each
// group; a backup copy already in progress also stops, leaving its target
// undeleted and counted as failed, and the stats gathered so far are
// returned.
func (e *Executor) Execute(ctx context.Context, p *plan.DeletionPlan, backupRoot string) (*DeletionStats, error) {
	backupDir := filepath.Join(backupRoot, "backup_"+time.Now().Format("20060102_150405"))
	if !e.dryRun {
		if err := os.MkdirAll(backupDir, 0o700); err != nil {
			return nil, fmt.Errorf("create backup directory: %w", err)
		}
	}

	stats := &DeletionStats{BackupDir: backupDir, GroupsTotal: len(p.Groups)}

	for _, group := range p.Groups {
		select {
		case <-ctx.Done():
			stats.Cancelled = true
			return stats, nil
		default:
		}

		if !p.Executable(group.GroupID) {
			stats.GroupsSkipped++
			stats.FilesFailed += len(group.DeleteFiles)
			stats.Outcomes = append(stats.Outcomes, &GroupOutcome{GroupID: group.GroupID, Skipped: true})
			continue
		}

		outcome := e.executeGroup(ctx, group, backupDir)
		stats.Outcomes = append(stats.Outcomes, outcome)
		stats.FilesDeleted += outcome.FilesDeleted
		stats.FilesFailed += len(group.DeleteFiles) - outcome.FilesDeleted
		stats.BytesFreed += outcome.BytesFreed
		if len(outcome.Errors) == 0 {
			stats.GroupsSucceeded++
		} else {
			stats.GroupsFailed++
		}
	}

	util.SuccessLog("Execution complete: %d/%d groups succeeded, %d files deleted, %s freed",
		stats.GroupsSucceeded, stats.GroupsTotal, stats.FilesDeleted, humanize.Bytes(uint64(stats.BytesFreed)))

	return stats, nil
}

// executeGroup runs the two explicit phases — backup, then delete — for
// every file in group.DeleteFiles, concurrency-bounded across files.
func (e *Executor) executeGroup(ctx context.Context, group *plan.DeletionGroup, backupDir string) *GroupOutcome {
	outcome := &GroupOutcome{GroupID: group.GroupID}

	results := make([]backupDeleteResult, len(group.DeleteFiles))

	p := pool.New().WithMaxGoroutines(e.concurrency)
	for i, target := range group.DeleteFiles {
		i, target := i, target
		p.Go(func() {
			results[i] = e.backupThenDelete(ctx, target.FilePath, target.FileSize, backupDir)
		})
	}
	p.Wait()

	for i, r := range results {
		if r.err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", group.DeleteFiles[i].FilePath, r.err))
			continue
		}
		if r.backedUp {
			outcome.FilesBackedUp++
		}
		if r.deleted {
			outcome.FilesDeleted++
			outcome.BytesFreed += r.size
		}
	}
	return outcome
}

type backupDeleteResult struct {
	backedUp bool
	deleted  bool
	size     int64
	err      error
}

// backupThenDelete performs phase 1 (backup) then phase 2 (delete) for a
// single target, in dry-run or real mode. Phase 2 never runs if phase 1
// did not complete — this is the P9 "backup-before-delete" invariant.
func (e *Executor) backupThenDelete(ctx context.Context, path string, size int64, backupDir string) backupDeleteResult {
	if e.dryRun {
		return backupDeleteResult{backedUp: true, deleted: true, size: size}
	}

	dest := collisionSafeDest(backupDir, filepath.Base(path))
	if err := e.copyFile(ctx, path, dest); err != nil {
		return backupDeleteResult{err: fmt.Errorf("backup failed: %w", err)}
	}

	if err := util.RetryableRemove(path, e.retryConfig); err != nil {
		return backupDeleteResult{backedUp: true, err: fmt.Errorf("delete failed after backup: %w", err)}
	}

	if e.logger != nil {
		e.logger.LogExecute("", path, dest, "delete", size, 0, nil)
	}

	return backupDeleteResult{backedUp: true, deleted: true, size: size}
}

// collisionSafeDest returns backupDir/basename, disambiguated with a
// numeric suffix if that name is already taken in this run.
func collisionSafeDest(backupDir, basename string) string {
	dest := filepath.Join(backupDir, basename)
	if _, err := os.Stat(dest); err != nil {
		return dest
	}
	ext := filepath.Ext(basename)
	stem := basename[:len(basename)-len(ext)]
	for n := 1; ; n++ {
		candidate := filepath.Join(backupDir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// copyFile copies srcPath to destPath atomically via a .part temp file,
// preserving the source's mode bits.
func (e *Executor) copyFile(ctx context.Context, srcPath, destPath string) error {
	if err := util.RetryableMkdirAll(filepath.Dir(destPath), 0o755, e.retryConfig); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	src, err := util.RetryableOpen(srcPath, e.retryConfig)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	tempPath := destPath + ".part"
	dest, err := util.RetryableCreate(tempPath, e.retryConfig)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, copyErr := copyWithContext(ctx, dest, src, e.bufferSize)
	dest.Close()
	if copyErr != nil {
		util.RetryableRemove(tempPath, e.retryConfig)
		return fmt.Errorf("copy: %w", copyErr)
	}

	os.Chmod(tempPath, info.Mode())

	if err := util.RetryableRename(tempPath, destPath, e.retryConfig); err != nil {
		util.RetryableRemove(tempPath, e.retryConfig)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// copyWithContext copies src to dst in bufferSize chunks, checking ctx
// between reads so a cancellation mid-copy stops promptly.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = 128 * 1024
	}
	buf := make([]byte, bufferSize)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er == io.EOF {
				break
			}
			return written, er
		}
	}
	return written, nil
}
