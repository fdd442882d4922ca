package score

import (
	"testing"
	"time"
)

func TestScoreLosslessIsMaxFormatAndBitrate(t *testing.T) {
	p := &AudioProperties{Format: "flac", HasSampleRate: true, SampleRateHz: 96000, HasMtime: true, Mtime: time.Now()}
	got := Score(p)
	if got != 100 {
		t.Errorf("expected a recent 96kHz FLAC to score 100, got %.2f", got)
	}
	if !p.IsLossless {
		t.Error("expected IsLossless to be derived true for flac")
	}
}

func TestScoreMonotonicWithBitrate(t *testing.T) {
	// P10: given two files differing only in bitrate, the higher-bitrate
	// file must score >= the lower.
	low := &AudioProperties{Format: "mp3", HasBitrate: true, BitrateKbps: 128, HasSampleRate: true, SampleRateHz: 44100}
	high := &AudioProperties{Format: "mp3", HasBitrate: true, BitrateKbps: 320, HasSampleRate: true, SampleRateHz: 44100}

	lowScore := Score(low)
	highScore := Score(high)

	if highScore < lowScore {
		t.Errorf("expected higher bitrate to score >= lower bitrate, got %.2f < %.2f", highScore, lowScore)
	}
}

func TestScoreVBRBonus(t *testing.T) {
	cbr := &AudioProperties{Format: "mp3", HasBitrate: true, BitrateKbps: 256, BitrateMode: BitrateCBR}
	vbr := &AudioProperties{Format: "mp3", HasBitrate: true, BitrateKbps: 256, BitrateMode: BitrateVBR}

	if Score(vbr) <= Score(cbr) {
		t.Errorf("expected VBR bonus to push score above equivalent CBR: vbr=%.2f cbr=%.2f", Score(vbr), Score(cbr))
	}
}

func TestScoreBitrateClampedAt30Points(t *testing.T) {
	p := &AudioProperties{Format: "mp3", HasBitrate: true, BitrateKbps: 320, BitrateMode: BitrateVBR}
	Score(p)
	// format(20) + bitrate(<=30) + samplerate(unknown=10) + recency(unknown=0) <= 60
	if p.QualityScore > 60 {
		t.Errorf("expected bitrate contribution to be clamped, total too high: %.2f", p.QualityScore)
	}
}

func TestScoreUnknownFieldsUseDefaults(t *testing.T) {
	p := &AudioProperties{Format: "unknownfmt"}
	got := Score(p)
	// format(10) + bitrate unknown(5) + samplerate unknown(10) + recency unknown(0) = 25
	if got != 25 {
		t.Errorf("expected 25 for all-unknown file, got %.2f", got)
	}
}

func TestRankGroupQualityRanking(t *testing.T) {
	// Scenario: {A.flac@1411/96kHz, B.mp3@320/44.1kHz, C.mp3@128/44.1kHz}
	a := &AudioProperties{Path: "A.flac", Format: "flac", HasSampleRate: true, SampleRateHz: 96000, FileSize: 40_000_000}
	b := &AudioProperties{Path: "B.mp3", Format: "mp3", HasBitrate: true, BitrateKbps: 320, HasSampleRate: true, SampleRateHz: 44100, FileSize: 9_000_000}
	c := &AudioProperties{Path: "C.mp3", Format: "mp3", HasBitrate: true, BitrateKbps: 128, HasSampleRate: true, SampleRateHz: 44100, FileSize: 4_000_000}

	for _, p := range []*AudioProperties{a, b, c} {
		Score(p)
	}

	keeper, rest := RankGroup([]*AudioProperties{b, c, a})
	if keeper.Path != "A.flac" {
		t.Errorf("expected A.flac to be the keeper, got %s", keeper.Path)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 deletion candidates, got %d", len(rest))
	}
}

func TestRankGroupTieBreaksOnFileSize(t *testing.T) {
	small := &AudioProperties{Path: "small.flac", Format: "flac", FileSize: 10}
	large := &AudioProperties{Path: "large.flac", Format: "flac", FileSize: 20}
	Score(small)
	Score(large)

	keeper, _ := RankGroup([]*AudioProperties{small, large})
	if keeper.Path != "large.flac" {
		t.Errorf("expected the larger file to win a quality tie, got %s", keeper.Path)
	}
}

func TestDeriveIsLosslessCaseInsensitive(t *testing.T) {
	if !DeriveIsLossless("FLAC") {
		t.Error("expected FLAC (uppercase) to be classified lossless")
	}
	if DeriveIsLossless("mp3") {
		t.Error("expected mp3 to not be classified lossless")
	}
}
