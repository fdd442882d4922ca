package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/loungecrasher/music-janitor/internal/util"
)

// LibraryFile is the canonical record of one audio file in the index.
type LibraryFile struct {
	ID              int64
	FilePath        string
	Filename        string
	Artist          string
	Title           string
	Album           string
	Year            int // 0 means null
	Duration        float64
	HasDuration     bool
	FileFormat      string
	FileSize        int64
	MetadataHash    string
	FileContentHash string
	IndexedAt       time.Time
	FileMtime       time.Time
	LastVerified    time.Time
	HasLastVerified bool
	IsActive        bool
}

// libraryFileColumns is the write-time column whitelist. Column-whitelist
// validation runs before every write; any caller-constructed column name
// outside this set aborts rather than reaching a query string.
var libraryFileColumns = map[string]bool{
	"file_path": true, "filename": true, "artist": true, "title": true,
	"album": true, "year": true, "duration": true, "file_format": true,
	"file_size": true, "metadata_hash": true, "file_content_hash": true,
	"indexed_at": true, "file_mtime": true, "last_verified": true, "is_active": true,
}

// ValidateColumns rejects any column name not in the library_index
// whitelist. It exists so that code assembling dynamic SELECT/UPDATE
// fragments (e.g. CLI filters) cannot smuggle arbitrary identifiers into
// a query string.
func ValidateColumns(cols []string) error {
	for _, c := range cols {
		if !libraryFileColumns[c] {
			return fmt.Errorf("%w: unknown column %q", util.ErrInvalidConfig, c)
		}
	}
	return nil
}

const libraryFileSelectCols = `
	id, file_path, filename, COALESCE(artist, ''), COALESCE(title, ''), COALESCE(album, ''),
	COALESCE(year, 0), duration, file_format, file_size, metadata_hash, file_content_hash,
	indexed_at, file_mtime, last_verified, is_active`

func scanLibraryFile(row interface{ Scan(...any) error }) (*LibraryFile, error) {
	f := &LibraryFile{}
	var duration sql.NullFloat64
	var lastVerified sql.NullTime
	var isActive int
	err := row.Scan(
		&f.ID, &f.FilePath, &f.Filename, &f.Artist, &f.Title, &f.Album,
		&f.Year, &duration, &f.FileFormat, &f.FileSize, &f.MetadataHash, &f.FileContentHash,
		&f.IndexedAt, &f.FileMtime, &lastVerified, &isActive,
	)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		f.Duration = duration.Float64
		f.HasDuration = true
	}
	if lastVerified.Valid {
		f.LastVerified = lastVerified.Time
		f.HasLastVerified = true
	}
	f.IsActive = isActive != 0
	return f, nil
}

// Upsert inserts a new LibraryFile or updates the existing active row for
// the same file_path. On return the record is visible to all subsequent
// reads.
func (s *Store) Upsert(f *LibraryFile) error {
	var yearArg, durationArg, lastVerifiedArg any
	if f.Year != 0 {
		yearArg = f.Year
	}
	if f.HasDuration {
		durationArg = f.Duration
	}
	if f.HasLastVerified {
		lastVerifiedArg = f.LastVerified
	}

	return s.withRetry("upsert library_index row", func() error {
		result, err := s.db.Exec(`
			INSERT INTO library_index (
				file_path, filename, artist, title, album, year, duration,
				file_format, file_size, metadata_hash, file_content_hash,
				indexed_at, file_mtime, last_verified, is_active
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(file_path) WHERE is_active = 1 DO UPDATE SET
				filename = excluded.filename,
				artist = excluded.artist,
				title = excluded.title,
				album = excluded.album,
				year = excluded.year,
				duration = excluded.duration,
				file_format = excluded.file_format,
				file_size = excluded.file_size,
				metadata_hash = excluded.metadata_hash,
				file_content_hash = excluded.file_content_hash,
				file_mtime = excluded.file_mtime,
				last_verified = excluded.last_verified,
				is_active = 1
		`, f.FilePath, f.Filename, nullableString(f.Artist), nullableString(f.Title), nullableString(f.Album),
			yearArg, durationArg, f.FileFormat, f.FileSize, f.MetadataHash, f.FileContentHash,
			time.Now().UTC(), f.FileMtime, lastVerifiedArg)
		if err != nil {
			return fmt.Errorf("upsert library_index: %w", err)
		}
		if f.ID == 0 {
			if id, err := result.LastInsertId(); err == nil && id != 0 {
				f.ID = id
			} else {
				return s.db.QueryRow(`SELECT id FROM library_index WHERE file_path = ? AND is_active = 1`, f.FilePath).Scan(&f.ID)
			}
		}
		return nil
	})
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// UpsertBatch attempts a single atomic transaction for all records; on
// failure it rolls back and falls back to per-record upserts so that one
// bad row never poisons the whole batch. It returns the number of rows
// actually written and the per-row errors encountered during fallback.
func (s *Store) UpsertBatch(records []*LibraryFile) (int, []error) {
	if len(records) == 0 {
		return 0, nil
	}

	if err := s.upsertBatchTx(records); err == nil {
		return len(records), nil
	}

	// Fallback: isolate the bad rows by retrying one at a time.
	successes := 0
	var errs []error
	for _, r := range records {
		if err := s.Upsert(r); err != nil {
			errs = append(errs, fmt.Errorf("upsert %s: %w", r.FilePath, err))
			continue
		}
		successes++
	}
	return successes, errs
}

func (s *Store) upsertBatchTx(records []*LibraryFile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO library_index (
			file_path, filename, artist, title, album, year, duration,
			file_format, file_size, metadata_hash, file_content_hash,
			indexed_at, file_mtime, last_verified, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(file_path) WHERE is_active = 1 DO UPDATE SET
			filename = excluded.filename,
			artist = excluded.artist,
			title = excluded.title,
			album = excluded.album,
			year = excluded.year,
			duration = excluded.duration,
			file_format = excluded.file_format,
			file_size = excluded.file_size,
			metadata_hash = excluded.metadata_hash,
			file_content_hash = excluded.file_content_hash,
			file_mtime = excluded.file_mtime,
			last_verified = excluded.last_verified,
			is_active = 1
	`)
	if err != nil {
		return fmt.Errorf("prepare batch upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, f := range records {
		var yearArg, durationArg, lastVerifiedArg any
		if f.Year != 0 {
			yearArg = f.Year
		}
		if f.HasDuration {
			durationArg = f.Duration
		}
		if f.HasLastVerified {
			lastVerifiedArg = f.LastVerified
		}
		if _, err := stmt.Exec(
			f.FilePath, f.Filename, nullableString(f.Artist), nullableString(f.Title), nullableString(f.Album),
			yearArg, durationArg, f.FileFormat, f.FileSize, f.MetadataHash, f.FileContentHash,
			now, f.FileMtime, lastVerifiedArg,
		); err != nil {
			return fmt.Errorf("batch upsert row %s: %w", f.FilePath, err)
		}
	}

	return tx.Commit()
}

// GetByPath returns the active record at path, or nil if none exists.
func (s *Store) GetByPath(path string) (*LibraryFile, error) {
	row := s.db.QueryRow(`SELECT `+libraryFileSelectCols+` FROM library_index WHERE file_path = ? AND is_active = 1`, path)
	f, err := scanLibraryFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get by path: %w", err)
	}
	return f, nil
}

// GetByMetadataHash returns the first active match for the metadata hash,
// or nil. Use GetAllByMetadataHash when multiple matches matter.
func (s *Store) GetByMetadataHash(hash string) (*LibraryFile, error) {
	matches, err := s.GetAllByMetadataHash(hash)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

// GetAllByMetadataHash returns every active record sharing a metadata hash.
func (s *Store) GetAllByMetadataHash(hash string) ([]*LibraryFile, error) {
	rows, err := s.db.Query(`SELECT `+libraryFileSelectCols+` FROM library_index WHERE metadata_hash = ? AND is_active = 1 ORDER BY id`, hash)
	if err != nil {
		return nil, fmt.Errorf("get all by metadata hash: %w", err)
	}
	defer rows.Close()
	return scanLibraryFiles(rows)
}

// GetByContentHash returns the active record matching the content hash, or
// nil. A "..._HASH_FAILED_..." sentinel is unique per source file and never
// matches another file's; a "{size}_FILE_TOO_LARGE" sentinel depends only on
// the size, so oversized files of equal size match each other.
func (s *Store) GetByContentHash(hash string) (*LibraryFile, error) {
	row := s.db.QueryRow(`SELECT `+libraryFileSelectCols+` FROM library_index WHERE file_content_hash = ? AND is_active = 1 LIMIT 1`, hash)
	f, err := scanLibraryFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get by content hash: %w", err)
	}
	return f, nil
}

// HashAxis selects which fingerprint axis a batch lookup targets.
type HashAxis int

const (
	AxisMetadata HashAxis = iota
	AxisContent
)

// GetBatchByHashes resolves many hashes in chunked IN(...) queries (at most
// 500 placeholders per statement to stay under SQLite's parameter limit)
// and returns a map keyed by the input hash.
func (s *Store) GetBatchByHashes(hashes []string, axis HashAxis) (map[string][]*LibraryFile, error) {
	result := make(map[string][]*LibraryFile)
	if len(hashes) == 0 {
		return result, nil
	}

	col := "metadata_hash"
	if axis == AxisContent {
		col = "file_content_hash"
	}

	const chunkSize = 500
	for start := 0; start < len(hashes); start += chunkSize {
		end := start + chunkSize
		if end > len(hashes) {
			end = len(hashes)
		}
		chunk := hashes[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		query := fmt.Sprintf(`SELECT %s FROM library_index WHERE %s IN (%s) AND is_active = 1 ORDER BY id`,
			libraryFileSelectCols, col, placeholders)
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("get batch by hashes: %w", err)
		}
		files, err := scanLibraryFiles(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			key := f.MetadataHash
			if axis == AxisContent {
				key = f.FileContentHash
			}
			result[key] = append(result[key], f)
		}
	}

	return result, nil
}

// SearchByArtistTitle does a case-insensitive active-record search. Either
// argument may be empty to match any value for that field.
func (s *Store) SearchByArtistTitle(artist, title string) ([]*LibraryFile, error) {
	query := `SELECT ` + libraryFileSelectCols + ` FROM library_index WHERE is_active = 1`
	var args []any
	if strings.TrimSpace(artist) != "" {
		query += ` AND LOWER(artist) = LOWER(?)`
		args = append(args, artist)
	}
	if strings.TrimSpace(title) != "" {
		query += ` AND LOWER(title) = LOWER(?)`
		args = append(args, title)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search by artist/title: %w", err)
	}
	defer rows.Close()
	return scanLibraryFiles(rows)
}

func scanLibraryFiles(rows *sql.Rows) ([]*LibraryFile, error) {
	var out []*LibraryFile
	for rows.Next() {
		f, err := scanLibraryFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan library_index row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SoftDelete marks the active record at path inactive. Idempotent: calling
// it twice in a row has the same effect as calling it once.
func (s *Store) SoftDelete(path string) error {
	return s.withRetry("soft delete", func() error {
		_, err := s.db.Exec(`UPDATE library_index SET is_active = 0 WHERE file_path = ? AND is_active = 1`, path)
		if err != nil {
			return fmt.Errorf("soft delete %s: %w", path, err)
		}
		return nil
	})
}

// SoftDeleteBatch marks every given path inactive in one transaction,
// chunking the IN(...) list to stay under the parameter limit.
func (s *Store) SoftDeleteBatch(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withRetry("soft delete batch", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		const chunkSize = 500
		for start := 0; start < len(paths); start += chunkSize {
			end := start + chunkSize
			if end > len(paths) {
				end = len(paths)
			}
			chunk := paths[start:end]
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
			args := make([]any, len(chunk))
			for i, p := range chunk {
				args[i] = p
			}
			query := fmt.Sprintf(`UPDATE library_index SET is_active = 0 WHERE file_path IN (%s) AND is_active = 1`, placeholders)
			if _, err := tx.Exec(query, args...); err != nil {
				return fmt.Errorf("soft delete batch chunk: %w", err)
			}
		}
		return tx.Commit()
	})
}

// HardDelete permanently removes the row at path (any is_active state).
func (s *Store) HardDelete(path string) error {
	return s.withRetry("hard delete", func() error {
		_, err := s.db.Exec(`DELETE FROM library_index WHERE file_path = ?`, path)
		if err != nil {
			return fmt.Errorf("hard delete %s: %w", path, err)
		}
		return nil
	})
}

// AllActivePaths returns every active file_path, for verification sweeps
// that need to check disk presence without loading full records.
func (s *Store) AllActivePaths() ([]string, error) {
	rows, err := s.db.Query(`SELECT file_path FROM library_index WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list active paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan active path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// AllActivePathSet is a convenience wrapper returning a lookup set, used by
// the Indexer to decide insert vs. update without one query per file.
func (s *Store) AllActivePathSet() (map[string]*LibraryFile, error) {
	rows, err := s.db.Query(`SELECT ` + libraryFileSelectCols + ` FROM library_index WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list active files: %w", err)
	}
	defer rows.Close()
	files, err := scanLibraryFiles(rows)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*LibraryFile, len(files))
	for _, f := range files {
		result[f.FilePath] = f
	}
	return result, nil
}
