package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// LibraryStatistics is an aggregate snapshot of the active index.
type LibraryStatistics struct {
	TotalFiles       int
	TotalSize        int64
	FormatsBreakdown map[string]int
	ArtistsCount     int
	AlbumsCount      int
	LastIndexTime    time.Time
	HasLastIndex     bool
	IndexDuration    time.Duration
}

// Statistics recomputes and returns a LibraryStatistics snapshot from the
// current active rows. It does not write to library_stats; RecordStatistics
// does that.
func (s *Store) Statistics() (*LibraryStatistics, error) {
	stats := &LibraryStatistics{FormatsBreakdown: map[string]int{}}

	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM library_index WHERE is_active = 1`).
		Scan(&stats.TotalFiles, &stats.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("statistics totals: %w", err)
	}

	rows, err := s.db.Query(`SELECT file_format, COUNT(*) FROM library_index WHERE is_active = 1 GROUP BY file_format`)
	if err != nil {
		return nil, fmt.Errorf("statistics formats: %w", err)
	}
	for rows.Next() {
		var format string
		var count int
		if err := rows.Scan(&format, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan format row: %w", err)
		}
		stats.FormatsBreakdown[format] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`SELECT COUNT(DISTINCT artist) FROM library_index WHERE is_active = 1 AND artist IS NOT NULL AND artist != ''`).
		Scan(&stats.ArtistsCount)
	if err != nil {
		return nil, fmt.Errorf("statistics artists: %w", err)
	}
	err = s.db.QueryRow(`SELECT COUNT(DISTINCT album) FROM library_index WHERE is_active = 1 AND album IS NOT NULL AND album != ''`).
		Scan(&stats.AlbumsCount)
	if err != nil {
		return nil, fmt.Errorf("statistics albums: %w", err)
	}

	return stats, nil
}

// DistinctArtists returns every distinct non-empty artist name among active
// records, used to seed a MusicBrainz cache preload.
func (s *Store) DistinctArtists() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT artist FROM library_index WHERE is_active = 1 AND artist IS NOT NULL AND artist != ''`)
	if err != nil {
		return nil, fmt.Errorf("distinct artists: %w", err)
	}
	defer rows.Close()

	var artists []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// RecordStatistics persists a statistics snapshot along with when the
// indexing run that produced it finished and how long it took.
func (s *Store) RecordStatistics(stats *LibraryStatistics, lastIndexTime time.Time, indexDuration time.Duration) error {
	breakdown, err := json.Marshal(stats.FormatsBreakdown)
	if err != nil {
		return fmt.Errorf("marshal formats breakdown: %w", err)
	}

	return s.withRetry("record statistics", func() error {
		_, err := s.db.Exec(`
			INSERT INTO library_stats (
				total_files, total_size, formats_breakdown, artists_count, albums_count,
				last_index_time, index_duration
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, stats.TotalFiles, stats.TotalSize, string(breakdown), stats.ArtistsCount, stats.AlbumsCount,
			lastIndexTime.UTC(), indexDuration.Seconds())
		if err != nil {
			return fmt.Errorf("record statistics: %w", err)
		}
		return nil
	})
}

// LatestStatistics returns the most recently recorded snapshot, or nil if
// none has ever been recorded.
func (s *Store) LatestStatistics() (*LibraryStatistics, error) {
	row := s.db.QueryRow(`
		SELECT total_files, total_size, formats_breakdown, artists_count, albums_count,
		       last_index_time, index_duration
		FROM library_stats ORDER BY id DESC LIMIT 1
	`)

	stats := &LibraryStatistics{FormatsBreakdown: map[string]int{}}
	var breakdown string
	var lastIndexTime sql.NullTime
	var indexDurationSecs sql.NullFloat64

	err := row.Scan(&stats.TotalFiles, &stats.TotalSize, &breakdown, &stats.ArtistsCount, &stats.AlbumsCount,
		&lastIndexTime, &indexDurationSecs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest statistics: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &stats.FormatsBreakdown); err != nil {
		return nil, fmt.Errorf("unmarshal formats breakdown: %w", err)
	}
	if lastIndexTime.Valid {
		stats.LastIndexTime = lastIndexTime.Time
		stats.HasLastIndex = true
	}
	if indexDurationSecs.Valid {
		stats.IndexDuration = time.Duration(indexDurationSecs.Float64 * float64(time.Second))
	}
	return stats, nil
}
