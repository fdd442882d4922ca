package plan

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loungecrasher/music-janitor/internal/store"
)

// jsonGroup and jsonPlan mirror DeletionPlan/DeletionGroup with only the
// fields external consumers need, so a JSON snapshot survives schema
// evolution inside the unexported score/store types.
type jsonGroup struct {
	GroupID     string   `json:"group_id"`
	Reason      string   `json:"reason"`
	Keep        string   `json:"keep"`
	Delete      []string `json:"delete"`
	Executable  bool     `json:"executable"`
}

type jsonValidation struct {
	GroupID  string `json:"group_id"`
	Check    string `json:"check"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type jsonPlan struct {
	CreatedAt         string           `json:"created_at"`
	Groups            []jsonGroup      `json:"groups"`
	ValidationResults []jsonValidation `json:"validation_results"`
}

// WriteJSON writes a JSON snapshot of p (groups + validation_results) to
// outputPath, creating parent directories as needed.
func WriteJSON(p *DeletionPlan, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	snap := jsonPlan{CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")}
	for _, g := range p.Groups {
		jg := jsonGroup{
			GroupID:    g.GroupID,
			Reason:     g.Reason,
			Keep:       pathOf(g.KeepFile),
			Executable: p.Executable(g.GroupID),
		}
		for _, d := range g.DeleteFiles {
			jg.Delete = append(jg.Delete, d.FilePath)
		}
		snap.Groups = append(snap.Groups, jg)
	}
	for _, r := range p.ValidationResults {
		snap.ValidationResults = append(snap.ValidationResults, jsonValidation{
			GroupID: r.GroupID, Check: r.Check, Severity: r.Severity, Message: r.Message,
		})
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create plan file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// WriteCSV writes a flat, one-row-per-action CSV mirroring the JSON
// snapshot: one KEEP row per group and one DELETE row per file marked for
// deletion.
func WriteCSV(p *DeletionPlan, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create plan csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"group_id", "reason", "action", "path", "executable"}); err != nil {
		return err
	}

	for _, g := range p.Groups {
		executable := fmt.Sprintf("%v", p.Executable(g.GroupID))
		if g.KeepFile != nil {
			if err := w.Write([]string{g.GroupID, g.Reason, "KEEP", g.KeepFile.FilePath, executable}); err != nil {
				return err
			}
		}
		for _, d := range g.DeleteFiles {
			if err := w.Write([]string{g.GroupID, g.Reason, "DELETE", d.FilePath, executable}); err != nil {
				return err
			}
		}
	}
	return nil
}

func pathOf(f *store.LibraryFile) string {
	if f == nil {
		return ""
	}
	return f.FilePath
}
