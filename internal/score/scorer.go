// Package score implements the quality scorer (C6): it derives a 0-100
// score for one audio file from format, bitrate, sample rate, and
// recency, and ranks duplicate groups by that score.
package score

import (
	"math"
	"sort"
	"strings"
	"time"
)

// BitrateMode classifies how a lossy file's bitrate was encoded.
type BitrateMode int

const (
	BitrateUnknown BitrateMode = iota
	BitrateCBR
	BitrateVBR
	BitrateABR
)

// AudioProperties carries the quality-relevant attributes of one file.
type AudioProperties struct {
	Path           string
	Format         string // lowercased extension without dot
	BitrateKbps    int
	HasBitrate     bool
	SampleRateHz   int
	HasSampleRate  bool
	Channels       int
	DurationS      float64
	HasDuration    bool
	BitrateMode    BitrateMode
	FileSize       int64
	Mtime          time.Time
	HasMtime       bool
	IsLossless     bool
	QualityScore   float64
}

var losslessFormats = map[string]bool{
	"flac": true, "alac": true, "wav": true, "aiff": true, "aif": true,
	"ape": true, "wv": true, "tta": true, "dsd": true, "dsf": true,
}

// DeriveIsLossless classifies a format as lossless, the way the spec
// requires (`is_lossless` is derived, never supplied by the caller).
func DeriveIsLossless(format string) bool {
	return losslessFormats[strings.ToLower(format)]
}

// Score computes the 0-100 quality score for p and stores it on
// p.QualityScore, also returning it directly.
func Score(p *AudioProperties) float64 {
	p.IsLossless = DeriveIsLossless(p.Format)

	total := formatScore(p.Format, p.IsLossless) +
		bitrateScore(p) +
		sampleRateScore(p) +
		recencyScore(p)

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	p.QualityScore = total
	return total
}

func formatScore(format string, lossless bool) float64 {
	f := strings.ToLower(format)
	switch {
	case f == "flac" || f == "alac":
		return 40
	case f == "wav" || f == "aiff" || f == "aif":
		return 38
	case f == "ape" || f == "wv" || f == "tta":
		return 37
	case f == "dsd" || f == "dsf":
		return 36
	case f == "aac" || f == "m4a":
		return 22
	case f == "mp3":
		return 20
	case f == "vorbis" || f == "ogg" || f == "opus":
		return 18
	case f == "wma":
		return 15
	case lossless:
		// Unrecognized extension but flagged lossless elsewhere.
		return 37
	default:
		return 10
	}
}

func bitrateScore(p *AudioProperties) float64 {
	if p.IsLossless {
		return 30
	}
	if !p.HasBitrate {
		return 5
	}
	score := float64(int(30 * math.Min(float64(p.BitrateKbps)/320.0, 1.0)))
	if p.BitrateMode == BitrateVBR {
		score += 2
	}
	if score > 30 {
		score = 30
	}
	return score
}

func sampleRateScore(p *AudioProperties) float64 {
	if !p.HasSampleRate {
		return 10
	}
	switch {
	case p.SampleRateHz >= 96000:
		return 20
	case p.SampleRateHz >= 48000:
		return 15
	case p.SampleRateHz >= 44100:
		return 10
	default:
		return math.Round(10 * float64(p.SampleRateHz) / 44100.0)
	}
}

func recencyScore(p *AudioProperties) float64 {
	if !p.HasMtime {
		return 0
	}
	age := time.Since(p.Mtime)
	switch {
	case age < 365*24*time.Hour:
		return 10
	case age < 1825*24*time.Hour:
		return 5
	default:
		return 0
	}
}

// RankGroup sorts candidates by (quality_score, file_size) descending and
// returns the keeper (head) and the rest (deletion candidates). The
// file_size tiebreak prefers the physically larger file when scores tie.
func RankGroup(candidates []*AudioProperties) (keeper *AudioProperties, rest []*AudioProperties) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ranked := make([]*AudioProperties, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].QualityScore != ranked[j].QualityScore {
			return ranked[i].QualityScore > ranked[j].QualityScore
		}
		return ranked[i].FileSize > ranked[j].FileSize
	})

	return ranked[0], ranked[1:]
}
