package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/loungecrasher/music-janitor/internal/execute"
	"github.com/loungecrasher/music-janitor/internal/plan"
	"github.com/loungecrasher/music-janitor/internal/store"
)

// SummaryReport is the post-run human-readable summary of one planning
// and (optionally) execution pass over a library.
type SummaryReport struct {
	GeneratedAt time.Time

	// Library statistics at plan time.
	TotalFiles int
	TotalSize  int64
	Artists    int
	Albums     int
	Formats    map[string]int

	// Planning statistics.
	GroupsFound      int
	GroupsExecutable int
	GroupsBlocked    int
	FilesMarkedDelete int
	BytesReclaimable int64

	// Execution statistics, populated only when an Executor ran.
	Executed        bool
	GroupsSucceeded int
	GroupsFailed    int
	GroupsSkipped   int
	FilesDeleted    int
	FilesFailed     int
	BytesFreed      int64
	BackupDir       string

	TopGroups  []GroupSummary
	TopErrors  []ErrorSummary

	DatabasePath string
	EventLogPath string
}

// GroupSummary is one duplicate group rendered for the report, ranked by
// how many bytes its deletion reclaims.
type GroupSummary struct {
	GroupID       string
	Reason        string
	Keep          string
	Deletes       []string
	BytesReclaimed int64
	Blocked       bool
	BlockReasons  []string
}

// ErrorSummary is an error message with its occurrence count.
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport builds a SummaryReport from a library's current
// statistics, a deletion plan, and the optional stats from executing it.
// stats may be nil when the plan was only built, never executed.
func GenerateSummaryReport(db *store.Store, p *plan.DeletionPlan, stats *execute.DeletionStats, eventLogPath string) (*SummaryReport, error) {
	libStats, err := db.Statistics()
	if err != nil {
		return nil, fmt.Errorf("gather library statistics: %w", err)
	}

	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		EventLogPath: eventLogPath,
		TotalFiles:   libStats.TotalFiles,
		TotalSize:    libStats.TotalSize,
		Artists:      libStats.ArtistsCount,
		Albums:       libStats.AlbumsCount,
		Formats:      libStats.FormatsBreakdown,
	}

	if p != nil {
		report.GroupsFound = len(p.Groups)
		for _, g := range p.Groups {
			executable := p.Executable(g.GroupID)
			if executable {
				report.GroupsExecutable++
			} else {
				report.GroupsBlocked++
			}
			report.FilesMarkedDelete += len(g.DeleteFiles)

			var bytes int64
			for _, d := range g.DeleteFiles {
				bytes += d.FileSize
			}
			report.BytesReclaimable += bytes

			summary := GroupSummary{
				GroupID:        g.GroupID,
				Reason:         g.Reason,
				Keep:           pathOf(g.KeepFile),
				BytesReclaimed: bytes,
				Blocked:        !executable,
			}
			for _, d := range g.DeleteFiles {
				summary.Deletes = append(summary.Deletes, d.FilePath)
			}
			for _, r := range p.ResultsFor(g.GroupID) {
				if r.Severity == "error" {
					summary.BlockReasons = append(summary.BlockReasons, r.Message)
				}
			}
			report.TopGroups = append(report.TopGroups, summary)
		}
		sort.Slice(report.TopGroups, func(i, j int) bool {
			return report.TopGroups[i].BytesReclaimed > report.TopGroups[j].BytesReclaimed
		})
		if len(report.TopGroups) > 20 {
			report.TopGroups = report.TopGroups[:20]
		}

		report.TopErrors = gatherTopErrors(p, 10)
	}

	if stats != nil {
		report.Executed = true
		report.GroupsSucceeded = stats.GroupsSucceeded
		report.GroupsFailed = stats.GroupsFailed
		report.GroupsSkipped = stats.GroupsSkipped
		report.FilesDeleted = stats.FilesDeleted
		report.FilesFailed = stats.FilesFailed
		report.BytesFreed = stats.BytesFreed
		report.BackupDir = stats.BackupDir
	}

	return report, nil
}

func pathOf(f *store.LibraryFile) string {
	if f == nil {
		return ""
	}
	return f.FilePath
}

// gatherTopErrors counts validator error messages by check across the
// whole plan, most frequent first.
func gatherTopErrors(p *plan.DeletionPlan, limit int) []ErrorSummary {
	counts := make(map[string]int)
	for _, r := range p.ValidationResults {
		if r.Severity == "error" {
			counts[fmt.Sprintf("[%s] %s", r.Check, r.Message)]++
		}
	}
	errs := make([]ErrorSummary, 0, len(counts))
	for msg, n := range counts {
		errs = append(errs, ErrorSummary{Error: msg, Count: n})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Count > errs[j].Count })
	if len(errs) > limit {
		errs = errs[:limit]
	}
	return errs
}

// WriteMarkdownReport renders report as Markdown to outputPath.
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Music Library Cleaner - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}
	md.WriteString("---\n\n")

	md.WriteString("## Library\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Total Files | %d |\n", report.TotalFiles))
	md.WriteString(fmt.Sprintf("| Total Size | %s |\n", humanize.Bytes(uint64(report.TotalSize))))
	md.WriteString(fmt.Sprintf("| Artists | %d |\n", report.Artists))
	md.WriteString(fmt.Sprintf("| Albums | %d |\n", report.Albums))
	md.WriteString("\n")

	if report.GroupsFound > 0 {
		md.WriteString("## Planning\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Duplicate Groups Found | %d |\n", report.GroupsFound))
		md.WriteString(fmt.Sprintf("| Executable | %d |\n", report.GroupsExecutable))
		md.WriteString(fmt.Sprintf("| Blocked by Validation | %d |\n", report.GroupsBlocked))
		md.WriteString(fmt.Sprintf("| Files Marked for Deletion | %d |\n", report.FilesMarkedDelete))
		md.WriteString(fmt.Sprintf("| Bytes Reclaimable | %s |\n", humanize.Bytes(uint64(report.BytesReclaimable))))
		md.WriteString("\n")
	}

	if report.Executed {
		md.WriteString("## Execution\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Groups Succeeded | %d |\n", report.GroupsSucceeded))
		if report.GroupsFailed > 0 {
			md.WriteString(fmt.Sprintf("| Groups Failed | %d |\n", report.GroupsFailed))
		}
		if report.GroupsSkipped > 0 {
			md.WriteString(fmt.Sprintf("| Groups Skipped | %d |\n", report.GroupsSkipped))
		}
		md.WriteString(fmt.Sprintf("| Files Deleted | %d |\n", report.FilesDeleted))
		if report.FilesFailed > 0 {
			md.WriteString(fmt.Sprintf("| Files Failed | %d |\n", report.FilesFailed))
		}
		md.WriteString(fmt.Sprintf("| Bytes Freed | %s |\n", humanize.Bytes(uint64(report.BytesFreed))))
		if report.BackupDir != "" {
			md.WriteString(fmt.Sprintf("| Backup Directory | `%s` |\n", report.BackupDir))
		}
		md.WriteString("\n")
	}

	if len(report.TopGroups) > 0 {
		md.WriteString("## Duplicate Groups (Top 20 by bytes reclaimed)\n\n")
		for i, g := range report.TopGroups {
			label := g.GroupID
			status := "executable"
			if g.Blocked {
				status = "blocked"
			}
			md.WriteString(fmt.Sprintf("### %d. %s (%s, %s)\n\n", i+1, label, g.Reason, status))
			md.WriteString(fmt.Sprintf("**Keep:** `%s`\n\n", truncatePath(g.Keep, 90)))
			md.WriteString(fmt.Sprintf("**Delete (%d, %s reclaimed):**\n\n", len(g.Deletes), humanize.Bytes(uint64(g.BytesReclaimed))))
			for _, d := range g.Deletes {
				md.WriteString(fmt.Sprintf("- `%s`\n", truncatePath(d, 90)))
			}
			if g.Blocked {
				md.WriteString("\n**Blocked by:**\n\n")
				for _, reason := range g.BlockReasons {
					md.WriteString(fmt.Sprintf("- %s\n", reason))
				}
			}
			md.WriteString("\n")
		}
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Validation Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by MLC - Music Library Cleaner*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// truncatePath shortens path to at most maxLen characters, keeping the
// start and end and eliding the middle.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
