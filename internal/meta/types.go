package meta

import "context"

// MusicBrainzNormalizer canonicalizes an artist name via a MusicBrainz
// lookup. Defined here, not in the musicbrainz package, so the Indexer can
// depend on the interface without an import cycle back to meta.
type MusicBrainzNormalizer interface {
	NormalizeArtistName(ctx context.Context, artistName string) (string, error)
}

// RawTags is the collaborator-neutral tag bundle produced by a TagReader:
// whatever a container's embedded tags and stream headers say about one
// file, before normalization, enrichment, or fingerprinting touch it.
type RawTags struct {
	Format         string
	Container      string
	Codec          string
	Artist         string
	Album          string
	Title          string
	AlbumArtist    string
	Date           string
	Track          int
	TrackTotal     int
	Disc           int
	DiscTotal      int
	Compilation    bool
	DurationMs     int
	SampleRate     int
	Channels       int
	BitDepth       int
	BitrateKbps    int
	VBR            bool
	Lossless       bool
	RawTagsJSON    string
}

// Year extracts a four-digit year from Date, or 0 if none is present.
func (r *RawTags) Year() int {
	if r == nil || len(r.Date) < 4 {
		return 0
	}
	var y int
	for i := 0; i < 4; i++ {
		c := r.Date[i]
		if c < '0' || c > '9' {
			return 0
		}
		y = y*10 + int(c-'0')
	}
	return y
}
