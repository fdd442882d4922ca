package store

import (
	"fmt"
	"time"
)

// VettingSession is an append-only record of one vetting pass.
type VettingSession struct {
	ID               int64
	ImportFolder     string
	TotalFiles       int
	DuplicatesFound  int
	NewSongs         int
	UncertainMatches int
	ThresholdUsed    float64
	VettedAt         time.Time
}

// AppendVettingSession inserts a new session row. Sessions are never
// mutated after insert.
func (s *Store) AppendVettingSession(session *VettingSession) error {
	return s.withRetry("append vetting session", func() error {
		result, err := s.db.Exec(`
			INSERT INTO vetting_history (
				import_folder, total_files, duplicates_found, new_songs, uncertain_matches,
				threshold_used, vetted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, session.ImportFolder, session.TotalFiles, session.DuplicatesFound, session.NewSongs,
			session.UncertainMatches, session.ThresholdUsed, session.VettedAt.UTC())
		if err != nil {
			return fmt.Errorf("append vetting session: %w", err)
		}
		id, err := result.LastInsertId()
		if err == nil {
			session.ID = id
		}
		return nil
	})
}

// RecentVettingSessions returns the newest `limit` sessions, newest first.
// limit is clamped to [1, 1000].
func (s *Store) RecentVettingSessions(limit int) ([]*VettingSession, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.Query(`
		SELECT id, import_folder, total_files, duplicates_found, new_songs, uncertain_matches,
		       threshold_used, vetted_at
		FROM vetting_history
		ORDER BY vetted_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent vetting sessions: %w", err)
	}
	defer rows.Close()

	var out []*VettingSession
	for rows.Next() {
		sess := &VettingSession{}
		if err := rows.Scan(&sess.ID, &sess.ImportFolder, &sess.TotalFiles, &sess.DuplicatesFound,
			&sess.NewSongs, &sess.UncertainMatches, &sess.ThresholdUsed, &sess.VettedAt); err != nil {
			return nil, fmt.Errorf("scan vetting session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
