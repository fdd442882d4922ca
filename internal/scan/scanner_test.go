package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loungecrasher/music-janitor/internal/meta"
	"github.com/loungecrasher/music-janitor/internal/store"
)

// fakeReader returns a fixed artist and the file's base name as the title
// for any path, which is enough for the
// indexer's bookkeeping since tests only assert on file counts and the
// fingerprint/content-hash fallback paths.
type fakeReader struct{}

func (fakeReader) Read(path string) (*meta.RawTags, error) {
	return &meta.RawTags{Artist: "Test Artist", Title: filepath.Base(path)}, nil
}

func TestIsSupported(t *testing.T) {
	ix := &Indexer{
		extensions: map[string]bool{".mp3": true, ".flac": true, ".m4a": true},
	}

	tests := []struct {
		path     string
		expected bool
	}{
		{"test.mp3", true},
		{"test.MP3", true},
		{"test.flac", true},
		{"test.m4a", true},
		{"test.txt", false},
		{"test.jpg", false},
		{"test", false},
	}

	for _, tt := range tests {
		if got := ix.isSupported(tt.path); got != tt.expected {
			t.Errorf("isSupported(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func newTestIndexer(t *testing.T, dir string) (*Indexer, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(dir, "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ix := New(&Config{Store: db, Reader: fakeReader{}, Concurrency: 2})
	return ix, db
}

func writeAudioFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := make([]byte, size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestIndexDiscoversSupportedFilesOnly(t *testing.T) {
	tmpDir := t.TempDir()
	artistDir := filepath.Join(tmpDir, "Artist", "Album")

	writeAudioFile(t, filepath.Join(artistDir, "01 - Track One.mp3"), 512)
	writeAudioFile(t, filepath.Join(artistDir, "02 - Track Two.flac"), 512)
	writeAudioFile(t, filepath.Join(tmpDir, "Artist", "single.m4a"), 512)
	writeAudioFile(t, filepath.Join(tmpDir, "README.txt"), 128)

	ix, db := newTestIndexer(t, tmpDir)

	result, err := ix.Index(context.Background(), tmpDir, false)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if result.FilesIndexed != 3 {
		t.Errorf("expected 3 files indexed, got %d (errors=%v)", result.FilesIndexed, result.Errors)
	}

	paths, err := db.AllActivePaths()
	if err != nil {
		t.Fatalf("list active paths: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("expected 3 active paths in store, got %d", len(paths))
	}
}

func TestIndexSkipsUnchangedFilesOnSecondPass(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "track.mp3")
	writeAudioFile(t, path, 256)

	ix, _ := newTestIndexer(t, tmpDir)
	ctx := context.Background()

	first, err := ix.Index(ctx, tmpDir, false)
	if err != nil {
		t.Fatalf("first index: %v", err)
	}
	if first.FilesIndexed != 1 {
		t.Fatalf("expected 1 file indexed on first pass, got %d", first.FilesIndexed)
	}

	second, err := ix.Index(ctx, tmpDir, false)
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if second.FilesSkipped != 1 || second.FilesIndexed != 0 {
		t.Errorf("expected second pass to skip the unchanged file, got indexed=%d skipped=%d",
			second.FilesIndexed, second.FilesSkipped)
	}
}

func TestIndexForceRescanReindexesUnchangedFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "track.mp3")
	writeAudioFile(t, path, 256)

	ix, _ := newTestIndexer(t, tmpDir)
	ctx := context.Background()

	if _, err := ix.Index(ctx, tmpDir, false); err != nil {
		t.Fatalf("first index: %v", err)
	}

	forced, err := ix.Index(ctx, tmpDir, true)
	if err != nil {
		t.Fatalf("forced index: %v", err)
	}
	if forced.FilesIndexed != 1 {
		t.Errorf("expected force rescan to reindex the file, got indexed=%d skipped=%d",
			forced.FilesIndexed, forced.FilesSkipped)
	}
}

func TestIndexReconcilesChangedSize(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "track.mp3")
	writeAudioFile(t, path, 256)

	ix, db := newTestIndexer(t, tmpDir)
	ctx := context.Background()

	if _, err := ix.Index(ctx, tmpDir, false); err != nil {
		t.Fatalf("first index: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	writeAudioFile(t, path, 1024)

	result, err := ix.Index(ctx, tmpDir, false)
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if result.FilesIndexed != 1 {
		t.Errorf("expected changed file to be reindexed, got indexed=%d skipped=%d",
			result.FilesIndexed, result.FilesSkipped)
	}

	rec, err := db.GetByPath(path)
	if err != nil {
		t.Fatalf("get by path: %v", err)
	}
	if rec.FileSize != 1024 {
		t.Errorf("expected updated size 1024, got %d", rec.FileSize)
	}
}

func TestVerifyMarksMissingFilesInactive(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "track.mp3")
	writeAudioFile(t, path, 256)

	ix, db := newTestIndexer(t, tmpDir)
	ctx := context.Background()

	if _, err := ix.Index(ctx, tmpDir, false); err != nil {
		t.Fatalf("index: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	missing, markedInactive, err := ix.Verify(ctx, tmpDir)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if missing != 1 || markedInactive != 1 {
		t.Errorf("expected missing=1 markedInactive=1, got missing=%d markedInactive=%d", missing, markedInactive)
	}

	rec, err := db.GetByPath(path)
	if err != nil {
		t.Fatalf("get by path: %v", err)
	}
	if rec != nil {
		t.Error("expected soft-deleted record to be absent from active lookups")
	}
}
