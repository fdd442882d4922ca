package vet

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loungecrasher/music-janitor/internal/detect"
	"github.com/loungecrasher/music-janitor/internal/fingerprint"
	"github.com/loungecrasher/music-janitor/internal/meta"
	"github.com/loungecrasher/music-janitor/internal/store"
)

type fakeReader struct {
	tags map[string]*meta.RawTags
}

func (f *fakeReader) Read(path string) (*meta.RawTags, error) {
	if t, ok := f.tags[path]; ok {
		return t, nil
	}
	return &meta.RawTags{}, nil
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func newTestVetter(t *testing.T, reader *fakeReader) (*Vetter, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	det := detect.New(&detect.Config{Store: s, Reader: reader, UseFuzzy: true})
	return New(&Config{Store: s, Detector: det}), s
}

func TestVetPartitionsByBand(t *testing.T) {
	importDir := t.TempDir()
	dupPath := filepath.Join(importDir, "dup.mp3")
	newPath := filepath.Join(importDir, "new.mp3")
	writeFile(t, dupPath, 1024)
	writeFile(t, newPath, 2048)

	reader := &fakeReader{tags: map[string]*meta.RawTags{
		dupPath: {Artist: "Daft Punk", Title: "One More Time"},
		newPath: {Artist: "Totally New Artist", Title: "Totally New Song"},
	}}

	vetter, s := newTestVetter(t, reader)

	existingPath := filepath.Join(t.TempDir(), "library.mp3")
	hash := fingerprint.Metadata("Daft Punk", "One More Time", existingPath)
	rec := &store.LibraryFile{
		FilePath: existingPath, Filename: "library.mp3", Artist: "Daft Punk", Title: "One More Time",
		FileFormat: "mp3", MetadataHash: hash, FileContentHash: "irrelevant", FileMtime: time.Now(),
	}
	if err := s.Upsert(rec); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	result, err := vetter.Vet(context.Background(), importDir, 0.80)
	if err != nil {
		t.Fatalf("vet: %v", err)
	}

	if len(result.Duplicates) != 1 || result.Duplicates[0].Path != dupPath {
		t.Errorf("expected dup.mp3 classified as a duplicate, got %+v", result.Duplicates)
	}
	if len(result.New) != 1 || result.New[0].Path != newPath {
		t.Errorf("expected new.mp3 classified as new, got %+v", result.New)
	}
	if result.Session == nil {
		t.Error("expected a persisted vetting session")
	}

	recent, err := s.RecentVettingSessions(1)
	if err != nil {
		t.Fatalf("recent sessions: %v", err)
	}
	if len(recent) != 1 || recent[0].DuplicatesFound != 1 {
		t.Errorf("expected persisted session with 1 duplicate, got %+v", recent)
	}
}

func TestExportTextListsWritesThreeFiles(t *testing.T) {
	vetter, _ := newTestVetter(t, &fakeReader{})
	result := &SessionResult{
		New:        []Candidate{{Path: "/music/new.mp3", Verdict: &detect.Verdict{}}},
		Uncertain:  []Candidate{{Path: "/music/maybe.mp3", Verdict: &detect.Verdict{}}},
		Duplicates: []Candidate{{Path: "/music/dup.mp3", Verdict: &detect.Verdict{}}},
	}

	dir := t.TempDir()
	if err := vetter.ExportTextLists(result, dir); err != nil {
		t.Fatalf("export: %v", err)
	}

	for _, name := range []string{"new_songs.txt", "uncertain.txt", "duplicates.txt"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("expected non-empty %s", name)
		}
	}
}

func TestDeleteDuplicatesRequiresConfirmation(t *testing.T) {
	vetter, _ := newTestVetter(t, &fakeReader{})
	result := &SessionResult{Duplicates: []Candidate{{Path: "/music/dup.mp3"}}}

	_, errs := vetter.DeleteDuplicates(result, false, true)
	if len(errs) == 0 {
		t.Error("expected an error when confirmed=false")
	}
}

func TestDeleteDuplicatesDryRunLeavesFilesInPlace(t *testing.T) {
	vetter, _ := newTestVetter(t, &fakeReader{})
	dir := t.TempDir()
	dupPath := filepath.Join(dir, "dup.mp3")
	writeFile(t, dupPath, 128)

	result := &SessionResult{Duplicates: []Candidate{{Path: dupPath}}}
	removed, errs := vetter.DeleteDuplicates(result, true, true)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if removed != 1 {
		t.Errorf("expected dry-run to report 1 removed, got %d", removed)
	}
	if _, err := os.Stat(dupPath); err != nil {
		t.Errorf("expected dry-run to leave the file in place, got %v", err)
	}
}
