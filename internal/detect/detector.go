// Package detect implements the duplicate detector (C4): a three-tier
// matching pipeline that classifies one candidate audio file against the
// library index as new, a certain duplicate, or an uncertain fuzzy match.
package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/unicode/norm"

	"github.com/loungecrasher/music-janitor/internal/fingerprint"
	"github.com/loungecrasher/music-janitor/internal/meta"
	"github.com/loungecrasher/music-janitor/internal/store"
)

// Confidence bands, fixed by the data model and used by the Vetter to
// classify a verdict as certain, uncertain, or new.
const (
	CertainConfidence   = 0.95
	UncertainConfidence = 0.70

	// DefaultFuzzyThreshold is the similarity cutoff above which a tier-3
	// match counts as a duplicate rather than merely uncertain.
	DefaultFuzzyThreshold = 0.80
)

// MatchType identifies which tier produced a verdict.
type MatchType string

const (
	MatchNone           MatchType = "none"
	MatchExactMetadata  MatchType = "exact_metadata"
	MatchExactFile      MatchType = "exact_file"
	MatchFuzzyMetadata  MatchType = "fuzzy_metadata"
)

// ScoredMatch pairs a library record with its fuzzy-similarity score.
type ScoredMatch struct {
	File  *store.LibraryFile
	Score float64
}

// Verdict is the result of classifying one candidate file.
type Verdict struct {
	IsDuplicate bool
	Confidence  float64
	MatchType   MatchType
	Matched     *store.LibraryFile
	AllMatches  []ScoredMatch
}

// IsCertain reports whether the verdict falls in the certain band
// (confidence >= 0.95).
func (v *Verdict) IsCertain() bool { return v.Confidence >= CertainConfidence }

// IsUncertain reports whether the verdict falls in the uncertain band
// (0.70 <= confidence < 0.95).
func (v *Verdict) IsUncertain() bool {
	return v.Confidence >= UncertainConfidence && v.Confidence < CertainConfidence
}

// Detector classifies candidate files against a Store.
type Detector struct {
	store          *store.Store
	reader         meta.TagReader
	fuzzyThreshold float64
	useFuzzy       bool
	useContentHash bool
}

// Config configures a Detector.
type Config struct {
	Store *store.Store
	// Reader defaults to meta.NewReader() when nil.
	Reader meta.TagReader
	// FuzzyThreshold defaults to DefaultFuzzyThreshold when <= 0.
	FuzzyThreshold float64
	UseFuzzy       bool
	UseContentHash bool
}

// New creates a Detector.
func New(cfg *Config) *Detector {
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	reader := cfg.Reader
	if reader == nil {
		reader = meta.NewReader()
	}
	return &Detector{
		store:          cfg.Store,
		reader:         reader,
		fuzzyThreshold: threshold,
		useFuzzy:       cfg.UseFuzzy,
		useContentHash: cfg.UseContentHash,
	}
}

// candidate is a file's identity, extracted without touching the store.
type candidate struct {
	path         string
	artist       string
	title        string
	metadataHash string
	contentHash  string
}

func (d *Detector) extract(path string) (*candidate, error) {
	tags, err := d.reader.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	// Content() always returns a usable (possibly sentinel) digest even on
	// I/O failure, so its error is informational only.
	contentHash, _ := fingerprint.Content(path, fingerprint.DefaultChunkSize)
	return &candidate{
		path:         path,
		artist:       tags.Artist,
		title:        tags.Title,
		metadataHash: fingerprint.Metadata(tags.Artist, tags.Title, path),
		contentHash:  contentHash,
	}, nil
}

// Classify runs the three-tier pipeline against one candidate file.
func (d *Detector) Classify(ctx context.Context, path string) (*Verdict, error) {
	cand, err := d.extract(path)
	if err != nil {
		return &Verdict{MatchType: MatchNone, Confidence: 0}, nil
	}
	return d.classifyCandidate(ctx, cand, nil, nil)
}

func (d *Detector) classifyCandidate(ctx context.Context, cand *candidate, metaHits, contentHits []*store.LibraryFile) (*Verdict, error) {
	var err error

	// Tier 1: exact metadata.
	if metaHits == nil {
		metaHits, err = d.store.GetAllByMetadataHash(cand.metadataHash)
		if err != nil {
			return nil, fmt.Errorf("tier 1 lookup: %w", err)
		}
	}
	if len(metaHits) > 0 {
		return &Verdict{IsDuplicate: true, Confidence: 1.0, MatchType: MatchExactMetadata, Matched: metaHits[0]}, nil
	}

	// Tier 2: exact content.
	if d.useContentHash {
		if contentHits == nil {
			if hit, err := d.store.GetByContentHash(cand.contentHash); err != nil {
				return nil, fmt.Errorf("tier 2 lookup: %w", err)
			} else if hit != nil {
				contentHits = []*store.LibraryFile{hit}
			}
		}
		if len(contentHits) > 0 {
			return &Verdict{IsDuplicate: true, Confidence: 1.0, MatchType: MatchExactFile, Matched: contentHits[0]}, nil
		}
	}

	// Tier 3: fuzzy metadata.
	if d.useFuzzy && strings.TrimSpace(cand.artist) != "" && strings.TrimSpace(cand.title) != "" {
		pool, err := d.store.SearchByArtistTitle(cand.artist, "")
		if err != nil {
			return nil, fmt.Errorf("tier 3 lookup: %w", err)
		}
		return d.scoreFuzzy(cand, pool), nil
	}

	return &Verdict{MatchType: MatchNone, Confidence: 0}, nil
}

// scoreFuzzy scores cand against pool and assembles the tier-3 verdict.
// It surfaces the best match regardless of the configured threshold — the
// Vetter's confidence bands, not this cutoff, decide whether a borderline
// score counts as "uncertain" versus "new". The threshold flips the
// IsDuplicate bit and limits AllMatches to candidates scoring at or above it.
func (d *Detector) scoreFuzzy(cand *candidate, pool []*store.LibraryFile) *Verdict {
	normCandTitle := normalizeFuzzyTitle(cand.title)

	var scored []ScoredMatch
	for _, rec := range pool {
		if rec.FilePath == cand.path {
			continue
		}
		// Ratio 2*LCS/(len(a)+len(b)), the formula difflib's
		// SequenceMatcher.ratio uses.
		recTitle := normalizeFuzzyTitle(rec.Title)
		sim := 1.0
		if total := utf8.RuneCountInString(normCandTitle) + utf8.RuneCountInString(recTitle); total > 0 {
			sim = 2 * float64(edlib.LCS(normCandTitle, recTitle)) / float64(total)
		}
		scored = append(scored, ScoredMatch{File: rec, Score: sim})
	}

	if len(scored) == 0 {
		return &Verdict{MatchType: MatchNone, Confidence: 0}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	best := scored[0]

	var retained []ScoredMatch
	for _, m := range scored {
		if m.Score >= d.fuzzyThreshold {
			retained = append(retained, m)
		}
	}

	return &Verdict{
		IsDuplicate: best.Score >= d.fuzzyThreshold,
		Confidence:  best.Score,
		MatchType:   MatchFuzzyMetadata,
		Matched:     best.File,
		AllMatches:  retained,
	}
}

// fuzzyAdornments are stripped from a lowercased title before similarity
// scoring, so "One More Time (Radio Edit)" compares equal to "One More
// Time".
var fuzzyAdornments = []string{
	" (original mix)", " (radio edit)", " (album version)", " (extended)",
	" [official]", " [hd]", " - remastered",
}

func normalizeFuzzyTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(norm.NFC.String(title)))
	for _, adornment := range fuzzyAdornments {
		t = strings.ReplaceAll(t, adornment, "")
	}
	return strings.TrimSpace(t)
}

// ClassifyBatch runs the pipeline over many candidates at once. It issues
// one batched metadata-hash lookup, one batched content-hash lookup, and
// one search_by_artist_title call per distinct artist — O(distinct
// artists) queries rather than O(candidates) — so checking hundreds of
// files costs a small, fixed number of round trips to the store.
func (d *Detector) ClassifyBatch(ctx context.Context, paths []string) ([]*Verdict, error) {
	candidates := make([]*candidate, len(paths))
	metaHashes := make([]string, 0, len(paths))
	contentHashes := make([]string, 0, len(paths))

	for i, p := range paths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c, err := d.extract(p)
		if err != nil {
			continue
		}
		candidates[i] = c
		metaHashes = append(metaHashes, c.metadataHash)
		if d.useContentHash {
			contentHashes = append(contentHashes, c.contentHash)
		}
	}

	metaMatches, err := d.store.GetBatchByHashes(metaHashes, store.AxisMetadata)
	if err != nil {
		return nil, fmt.Errorf("batch metadata lookup: %w", err)
	}

	var contentMatches map[string][]*store.LibraryFile
	if d.useContentHash {
		contentMatches, err = d.store.GetBatchByHashes(contentHashes, store.AxisContent)
		if err != nil {
			return nil, fmt.Errorf("batch content lookup: %w", err)
		}
	}

	artistPool := make(map[string][]*store.LibraryFile)
	if d.useFuzzy {
		for _, c := range candidates {
			if c == nil || strings.TrimSpace(c.artist) == "" || strings.TrimSpace(c.title) == "" {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(c.artist))
			if _, ok := artistPool[key]; ok {
				continue
			}
			recs, err := d.store.SearchByArtistTitle(c.artist, "")
			if err != nil {
				return nil, fmt.Errorf("batch artist lookup for %q: %w", c.artist, err)
			}
			artistPool[key] = recs
		}
	}

	verdicts := make([]*Verdict, len(paths))
	for i, c := range candidates {
		select {
		case <-ctx.Done():
			return verdicts, ctx.Err()
		default:
		}
		if c == nil {
			verdicts[i] = &Verdict{MatchType: MatchNone, Confidence: 0}
			continue
		}
		v, err := d.classifyCandidate(ctx, c, metaMatches[c.metadataHash], contentMatches[c.contentHash])
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", c.path, err)
		}
		if v.MatchType == MatchNone && d.useFuzzy && strings.TrimSpace(c.artist) != "" && strings.TrimSpace(c.title) != "" {
			v = d.scoreFuzzy(c, artistPool[strings.ToLower(strings.TrimSpace(c.artist))])
		}
		verdicts[i] = v
	}

	return verdicts, nil
}
