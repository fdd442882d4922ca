package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// EnrichmentResult tracks what was enriched
type EnrichmentResult struct {
	Enriched      bool
	FieldsChanged []string
}

// EnrichFromPathAndSiblings fills in missing fields using path analysis and
// sibling-file inference. siblings holds the already-read RawTags for other
// files discovered in the same directory during this run (nil or a single
// entry skips sibling inference); unlike the teacher's version, this never
// touches the database — the caller collects siblings in memory as it walks.
func EnrichFromPathAndSiblings(rt *RawTags, srcPath string, siblings []*RawTags) *EnrichmentResult {
	result := &EnrichmentResult{
		Enriched:      false,
		FieldsChanged: make([]string, 0),
	}

	dir := filepath.Dir(srcPath)
	filename := filepath.Base(srcPath)

	parts := strings.Split(filepath.ToSlash(dir), "/")
	if len(parts) == 0 {
		return result
	}

	enrichFromPath(rt, parts, filename, result)

	if len(siblings) >= 2 {
		enrichFromSiblings(rt, siblings, result)
	}

	return result
}

// enrichFromPath extracts metadata from directory and filename patterns
func enrichFromPath(rt *RawTags, pathParts []string, filename string, result *EnrichmentResult) {
	// Common pattern: .../Artist/Album/Track.mp3
	// or: .../Artist/YYYY - Album/Track.mp3
	if len(pathParts) >= 2 {
		albumPart := pathParts[len(pathParts)-1]
		artistPart := pathParts[len(pathParts)-2]

		if rt.Artist == "" && artistPart != "" {
			if !isNumericFolder(artistPart) && !isSpecialFolder(artistPart) {
				rt.Artist = artistPart
				result.Enriched = true
				result.FieldsChanged = append(result.FieldsChanged, "artist_from_path")
			}
		}

		if rt.Album == "" && albumPart != "" {
			album, year := parseYearAlbumPattern(albumPart)
			if album != "" {
				rt.Album = album
				result.Enriched = true
				result.FieldsChanged = append(result.FieldsChanged, "album_from_path")

				if year != "" && rt.Date == "" {
					rt.Date = year
					result.FieldsChanged = append(result.FieldsChanged, "year_from_path")
				}
			} else if !isNumericFolder(albumPart) && !isSpecialFolder(albumPart) {
				rt.Album = albumPart
				result.Enriched = true
				result.FieldsChanged = append(result.FieldsChanged, "album_from_path")
			}
		}

		if rt.Disc == 0 {
			disc := extractDiscNumber(albumPart)
			if disc > 0 {
				rt.Disc = disc
				result.Enriched = true
				result.FieldsChanged = append(result.FieldsChanged, "disc_from_path")
			}
		}
	}

	if rt.Track == 0 || rt.Title == "" {
		track, title := parseTrackFilename(filename)
		if track > 0 && rt.Track == 0 {
			rt.Track = track
			result.Enriched = true
			result.FieldsChanged = append(result.FieldsChanged, "track_from_filename")
		}
		if title != "" && rt.Title == "" {
			rt.Title = title
			result.Enriched = true
			result.FieldsChanged = append(result.FieldsChanged, "title_from_filename")
		}
	}
}

// enrichFromSiblings infers missing metadata from other files already read
// in the same directory.
func enrichFromSiblings(rt *RawTags, siblings []*RawTags, result *EnrichmentResult) {
	if rt.Artist == "" {
		if artist := mostCommonField(siblings, func(s *RawTags) string { return s.Artist }); artist != "" {
			rt.Artist = artist
			result.Enriched = true
			result.FieldsChanged = append(result.FieldsChanged, "artist_from_siblings")
		}
	}

	if rt.Album == "" {
		if album := mostCommonField(siblings, func(s *RawTags) string { return s.Album }); album != "" {
			rt.Album = album
			result.Enriched = true
			result.FieldsChanged = append(result.FieldsChanged, "album_from_siblings")
		}
	}

	if rt.AlbumArtist == "" {
		if albumArtist := mostCommonField(siblings, func(s *RawTags) string { return s.AlbumArtist }); albumArtist != "" {
			rt.AlbumArtist = albumArtist
			result.Enriched = true
			result.FieldsChanged = append(result.FieldsChanged, "album_artist_from_siblings")
		}
	}
}

// parseYearAlbumPattern extracts album and year from "YYYY - Album Name" pattern
func parseYearAlbumPattern(s string) (album string, year string) {
	pattern := regexp.MustCompile(`^(\d{4})\s*-\s*(.+)$`)
	matches := pattern.FindStringSubmatch(s)
	if len(matches) == 3 {
		return strings.TrimSpace(matches[2]), matches[1]
	}
	return "", ""
}

// extractDiscNumber extracts disc number from folder names like "CD1", "CD 1", "Disc 1", etc.
func extractDiscNumber(s string) int {
	patterns := []string{
		`(?i)cd\s*(\d+)`,
		`(?i)disc\s*(\d+)`,
		`(?i)disk\s*(\d+)`,
		`\(CD\s*(\d+)\)`,
		`\(Disc\s*(\d+)\)`,
	}

	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		matches := re.FindStringSubmatch(s)
		if len(matches) >= 2 {
			if num, err := strconv.Atoi(matches[1]); err == nil {
				return num
			}
		}
	}
	return 0
}

// parseTrackFilename extracts track number and title from filename
// Examples: "01 - Song Title.mp3" -> (1, "Song Title")
//           "03 Song Title.mp3" -> (3, "Song Title")
func parseTrackFilename(filename string) (track int, title string) {
	nameNoExt := strings.TrimSuffix(filename, filepath.Ext(filename))

	patterns := []string{
		`^(\d{1,3})\s*-\s*(.+)$`,
		`^(\d{1,3})\s+(.+)$`,
		`(?i)track\s+(\d{1,3})\s*-\s*(.+)$`,
		`-\s*(\d{1,3})\s*-\s*(.+)$`,
	}

	for _, p := range patterns {
		matches := regexp.MustCompile(p).FindStringSubmatch(nameNoExt)
		if len(matches) == 3 {
			if num, err := strconv.Atoi(matches[1]); err == nil {
				return num, strings.TrimSpace(matches[2])
			}
		}
	}

	// "Artist - 01 - Song Title", requiring a title of more than one char
	if matches := regexp.MustCompile(`-\s*(\d{1,3})\s*-\s*([^-]+)$`).FindStringSubmatch(nameNoExt); len(matches) == 3 {
		if num, err := strconv.Atoi(matches[1]); err == nil {
			if title := strings.TrimSpace(matches[2]); len(title) > 1 {
				return num, title
			}
		}
	}

	if matches := regexp.MustCompile(`^(\d{1,3})\s+([A-Za-z].+)$`).FindStringSubmatch(nameNoExt); len(matches) == 3 {
		if num, err := strconv.Atoi(matches[1]); err == nil {
			return num, strings.TrimSpace(matches[2])
		}
	}

	return 0, ""
}

// isNumericFolder checks if folder name is purely numeric (like "02/", "03/")
func isNumericFolder(s string) bool {
	matched, _ := regexp.MatchString(`^\d+$`, s)
	return matched
}

// isSpecialFolder checks if folder should be skipped for metadata inference
func isSpecialFolder(s string) bool {
	special := map[string]bool{
		"_Singles":        true,
		"Various Artists": true,
		"Unknown Artist":  true,
		"Unknown Album":   true,
		".":               true,
		"..":              true,
	}
	return special[s]
}

// mostCommonField returns the value with the highest frequency among
// siblings, requiring >50% consensus to guard against picking up noise
// from a minority of mistagged files.
func mostCommonField(siblings []*RawTags, get func(*RawTags) string) string {
	counts := make(map[string]int)
	for _, s := range siblings {
		if v := get(s); v != "" {
			counts[v]++
		}
	}
	return mostFrequent(counts)
}

// mostFrequent returns the key with the highest count, requiring >50% consensus.
func mostFrequent(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}

	var maxKey string
	var maxCount, totalCount int

	for key, count := range counts {
		totalCount += count
		if count > maxCount {
			maxCount = count
			maxKey = key
		}
	}

	if float64(maxCount)/float64(totalCount) > 0.5 {
		return maxKey
	}

	return ""
}
