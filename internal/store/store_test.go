package store

import (
	"os"
	"testing"
	"time"
)

func tempStore(t *testing.T, name string) *Store {
	t.Helper()
	tmpFile := name
	t.Cleanup(func() {
		os.Remove(tmpFile)
		os.Remove(tmpFile + "-shm")
		os.Remove(tmpFile + "-wal")
	})

	s, err := Open(tmpFile)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := tempStore(t, "test-store.db")

	version, err := s.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{"library_index", "library_stats", "vetting_history", "schema_version"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	indexes := []string{
		"idx_library_index_metadata_hash",
		"idx_library_index_content_hash",
		"idx_library_index_is_active",
		"idx_library_index_format",
		"idx_library_index_active_metadata",
		"idx_library_index_active_content",
		"idx_library_index_artist_title",
		"idx_library_index_artist_album",
	}
	for _, index := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist", index)
		}
	}
}

func TestUpsertAndGetByPath(t *testing.T) {
	s := tempStore(t, "test-upsert.db")

	f := &LibraryFile{
		FilePath:        "/music/a.mp3",
		Filename:        "a.mp3",
		Artist:          "Daft Punk",
		Title:           "One More Time",
		FileFormat:      "mp3",
		FileSize:        1024,
		MetadataHash:    "abc123",
		FileContentHash: "1024_deadbeef",
		FileMtime:       time.Now(),
	}

	if err := s.Upsert(f); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if f.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}

	got, err := s.GetByPath("/music/a.mp3")
	if err != nil {
		t.Fatalf("get by path failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.Artist != "Daft Punk" || got.Title != "One More Time" {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.IsActive {
		t.Error("expected record to be active")
	}

	// Update: same path, new size.
	f.FileSize = 2048
	if err := s.Upsert(f); err != nil {
		t.Fatalf("update upsert failed: %v", err)
	}
	got, err = s.GetByPath("/music/a.mp3")
	if err != nil {
		t.Fatalf("get by path after update failed: %v", err)
	}
	if got.FileSize != 2048 {
		t.Errorf("expected updated size 2048, got %d", got.FileSize)
	}
}

func TestUpsertBatchWritesAllRows(t *testing.T) {
	s := tempStore(t, "test-batch.db")

	now := time.Now()
	records := []*LibraryFile{
		{FilePath: "/music/1.mp3", Filename: "1.mp3", FileFormat: "mp3", MetadataHash: "h1", FileContentHash: "c1", FileMtime: now},
		{FilePath: "/music/2.mp3", Filename: "2.mp3", FileFormat: "mp3", MetadataHash: "h2", FileContentHash: "c2", FileMtime: now},
		{FilePath: "/music/3.mp3", Filename: "3.mp3", FileFormat: "mp3", MetadataHash: "h3", FileContentHash: "c3", FileMtime: now},
	}

	n, errs := s.UpsertBatch(records)
	if n != 3 {
		t.Errorf("expected 3 successes on happy path, got %d (errs=%v)", n, errs)
	}

	paths, err := s.AllActivePaths()
	if err != nil {
		t.Fatalf("list active paths: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("expected 3 active paths, got %d", len(paths))
	}
}

func TestSoftDeleteIsIdempotent(t *testing.T) {
	s := tempStore(t, "test-softdelete.db")

	f := &LibraryFile{FilePath: "/music/gone.mp3", Filename: "gone.mp3", FileFormat: "mp3", MetadataHash: "h", FileContentHash: "c", FileMtime: time.Now()}
	if err := s.Upsert(f); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.SoftDelete(f.FilePath); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := s.SoftDelete(f.FilePath); err != nil {
		t.Fatalf("second soft delete: %v", err)
	}

	got, err := s.GetByPath(f.FilePath)
	if err != nil {
		t.Fatalf("get by path: %v", err)
	}
	if got != nil {
		t.Error("expected soft-deleted record to be absent from active lookups")
	}
}

func TestGetBatchByHashesReturnsEveryHash(t *testing.T) {
	s := tempStore(t, "test-hashchunk.db")

	now := time.Now()
	var hashes []string
	for i := 0; i < 5; i++ {
		h := time.Now().Add(time.Duration(i)).Format("150405.000000000")
		f := &LibraryFile{
			FilePath: "/music/" + h + ".mp3", Filename: h + ".mp3", FileFormat: "mp3",
			MetadataHash: h, FileContentHash: "c" + h, FileMtime: now,
		}
		if err := s.Upsert(f); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		hashes = append(hashes, h)
	}

	result, err := s.GetBatchByHashes(hashes, AxisMetadata)
	if err != nil {
		t.Fatalf("batch by hashes: %v", err)
	}
	if len(result) != 5 {
		t.Errorf("expected 5 distinct hash matches, got %d", len(result))
	}
}

func TestSearchByArtistTitleCaseInsensitive(t *testing.T) {
	s := tempStore(t, "test-search.db")

	f := &LibraryFile{
		FilePath: "/music/daft.mp3", Filename: "daft.mp3", Artist: "Daft Punk", Title: "One More Time",
		FileFormat: "mp3", MetadataHash: "h", FileContentHash: "c", FileMtime: time.Now(),
	}
	if err := s.Upsert(f); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := s.SearchByArtistTitle("daft punk", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestValidateColumnsRejectsUnknown(t *testing.T) {
	if err := ValidateColumns([]string{"artist", "title"}); err != nil {
		t.Errorf("expected known columns to validate, got %v", err)
	}
	if err := ValidateColumns([]string{"artist", "DROP TABLE library_index"}); err == nil {
		t.Error("expected unknown column to be rejected")
	}
}

func TestVettingSessionAppendAndRecent(t *testing.T) {
	s := tempStore(t, "test-vetting.db")

	for i := 0; i < 3; i++ {
		sess := &VettingSession{
			ImportFolder:  "/import",
			TotalFiles:    10,
			ThresholdUsed: 0.8,
			VettedAt:      time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendVettingSession(sess); err != nil {
			t.Fatalf("append vetting session: %v", err)
		}
	}

	recent, err := s.RecentVettingSessions(2)
	if err != nil {
		t.Fatalf("recent vetting sessions: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(recent))
	}
	if !recent[0].VettedAt.After(recent[1].VettedAt) {
		t.Error("expected newest-first ordering")
	}
}

func TestStatisticsSnapshot(t *testing.T) {
	s := tempStore(t, "test-stats.db")

	now := time.Now()
	for _, f := range []*LibraryFile{
		{FilePath: "/m/a.flac", Filename: "a.flac", Artist: "X", Album: "Y", FileFormat: "flac", FileSize: 100, MetadataHash: "h1", FileContentHash: "c1", FileMtime: now},
		{FilePath: "/m/b.mp3", Filename: "b.mp3", Artist: "X", Album: "Z", FileFormat: "mp3", FileSize: 50, MetadataHash: "h2", FileContentHash: "c2", FileMtime: now},
	} {
		if err := s.Upsert(f); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalFiles != 2 {
		t.Errorf("expected 2 total files, got %d", stats.TotalFiles)
	}
	if stats.TotalSize != 150 {
		t.Errorf("expected total size 150, got %d", stats.TotalSize)
	}
	if stats.FormatsBreakdown["flac"] != 1 || stats.FormatsBreakdown["mp3"] != 1 {
		t.Errorf("unexpected formats breakdown: %+v", stats.FormatsBreakdown)
	}
	if stats.ArtistsCount != 1 {
		t.Errorf("expected 1 distinct artist, got %d", stats.ArtistsCount)
	}

	if err := s.RecordStatistics(stats, now, time.Second); err != nil {
		t.Fatalf("record statistics: %v", err)
	}
	latest, err := s.LatestStatistics()
	if err != nil {
		t.Fatalf("latest statistics: %v", err)
	}
	if latest == nil || latest.TotalFiles != 2 {
		t.Fatalf("expected persisted snapshot with 2 files, got %+v", latest)
	}
}

func TestVerifyIntegrity(t *testing.T) {
	s := tempStore(t, "test-integrity.db")
	if err := s.VerifyIntegrity(); err != nil {
		t.Errorf("expected fresh database to pass integrity check, got %v", err)
	}
}
