package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loungecrasher/music-janitor/internal/execute"
	"github.com/loungecrasher/music-janitor/internal/plan"
	"github.com/loungecrasher/music-janitor/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFile(t *testing.T, s *store.Store, path, format string, size int64) *store.LibraryFile {
	t.Helper()
	f := &store.LibraryFile{
		FilePath:   path,
		Filename:   filepath.Base(path),
		Artist:     "Artist",
		Album:      "Album",
		FileFormat: format,
		FileSize:   size,
	}
	if err := s.Upsert(f); err != nil {
		t.Fatalf("upsert %s: %v", path, err)
	}
	return f
}

func TestGenerateSummaryReportWithoutPlan(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/music/a.flac", "flac", 1000)
	seedFile(t, s, "/music/b.mp3", "mp3", 500)

	report, err := GenerateSummaryReport(s, nil, nil, "")
	if err != nil {
		t.Fatalf("GenerateSummaryReport: %v", err)
	}
	if report.TotalFiles != 2 {
		t.Errorf("expected 2 total files, got %d", report.TotalFiles)
	}
	if report.TotalSize != 1500 {
		t.Errorf("expected total size 1500, got %d", report.TotalSize)
	}
	if report.GroupsFound != 0 {
		t.Errorf("expected no groups without a plan, got %d", report.GroupsFound)
	}
}

func TestGenerateSummaryReportWithPlan(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/music/keep.flac", "flac", 1000)

	p := &plan.DeletionPlan{
		Groups: []*plan.DeletionGroup{
			{
				GroupID:  "g1",
				Reason:   "exact_content_hash",
				KeepFile: &store.LibraryFile{FilePath: "/music/keep.flac"},
				DeleteFiles: []*store.LibraryFile{
					{FilePath: "/music/dup.mp3", FileSize: 300},
				},
			},
		},
		ValidationResults: []*plan.ValidationResult{
			{GroupID: "g1", Check: "backup_space", Severity: "warning", Message: "low free space"},
		},
	}

	report, err := GenerateSummaryReport(s, p, nil, "")
	if err != nil {
		t.Fatalf("GenerateSummaryReport: %v", err)
	}
	if report.GroupsFound != 1 || report.GroupsExecutable != 1 || report.GroupsBlocked != 0 {
		t.Errorf("expected 1 executable group, got found=%d executable=%d blocked=%d",
			report.GroupsFound, report.GroupsExecutable, report.GroupsBlocked)
	}
	if report.BytesReclaimable != 300 {
		t.Errorf("expected 300 reclaimable bytes, got %d", report.BytesReclaimable)
	}
	if len(report.TopGroups) != 1 || report.TopGroups[0].Blocked {
		t.Errorf("expected 1 unblocked group summary, got %+v", report.TopGroups)
	}
}

func TestGenerateSummaryReportBlockedGroup(t *testing.T) {
	s := newTestStore(t)

	p := &plan.DeletionPlan{
		Groups: []*plan.DeletionGroup{
			{
				GroupID:     "g1",
				KeepFile:    &store.LibraryFile{FilePath: "/music/keep.flac"},
				DeleteFiles: []*store.LibraryFile{{FilePath: "/music/dup.mp3", FileSize: 100}},
			},
		},
		ValidationResults: []*plan.ValidationResult{
			{GroupID: "g1", Check: "delete_paths_exist", Severity: "error", Message: "missing file"},
		},
	}

	report, err := GenerateSummaryReport(s, p, nil, "")
	if err != nil {
		t.Fatalf("GenerateSummaryReport: %v", err)
	}
	if report.GroupsBlocked != 1 || report.GroupsExecutable != 0 {
		t.Errorf("expected the group to be blocked, got executable=%d blocked=%d",
			report.GroupsExecutable, report.GroupsBlocked)
	}
	if len(report.TopErrors) != 1 || report.TopErrors[0].Count != 1 {
		t.Errorf("expected 1 top error, got %+v", report.TopErrors)
	}
}

func TestGenerateSummaryReportWithExecutionStats(t *testing.T) {
	s := newTestStore(t)

	p := &plan.DeletionPlan{Groups: []*plan.DeletionGroup{{GroupID: "g1"}}}
	stats := &execute.DeletionStats{
		GroupsTotal:     1,
		GroupsSucceeded: 1,
		FilesDeleted:    2,
		BytesFreed:      4096,
		BackupDir:       "/backups/backup_20260101_000000",
	}

	report, err := GenerateSummaryReport(s, p, stats, "/logs/events.jsonl")
	if err != nil {
		t.Fatalf("GenerateSummaryReport: %v", err)
	}
	if !report.Executed {
		t.Fatal("expected Executed to be true when stats is non-nil")
	}
	if report.FilesDeleted != 2 || report.BytesFreed != 4096 || report.BackupDir == "" {
		t.Errorf("execution fields not copied correctly: %+v", report)
	}
}

func TestWriteMarkdownReportProducesFile(t *testing.T) {
	report := &SummaryReport{
		TotalFiles: 3,
		TotalSize:  1024,
		TopGroups: []GroupSummary{
			{GroupID: "g1", Reason: "exact_content_hash", Keep: "/music/keep.flac",
				Deletes: []string{"/music/dup.mp3"}, BytesReclaimed: 512},
		},
	}

	outPath := filepath.Join(t.TempDir(), "report.md")
	if err := WriteMarkdownReport(report, outPath); err != nil {
		t.Fatalf("WriteMarkdownReport: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "keep.flac") || !strings.Contains(content, "dup.mp3") {
		t.Errorf("expected report to mention both paths, got:\n%s", content)
	}
}

func TestTruncatePathKeepsStartAndEnd(t *testing.T) {
	long := "/a/very/long/path/that/exceeds/the/maximum/allowed/length/for/display/purposes/file.mp3"
	got := truncatePath(long, 40)
	if len(got) > 43 {
		t.Errorf("expected truncated path around 40 chars, got %d: %s", len(got), got)
	}
	if got[:5] != long[:5] {
		t.Errorf("expected truncated path to keep the start, got %s", got)
	}
}
