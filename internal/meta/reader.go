package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
	mflac "github.com/mewkiz/flac"
)

// TagReader is the audio metadata collaborator (C8): given a path, it
// returns the tags and stream properties embedded in that file. Distinct
// implementations cover different containers or serve as a fallback when
// the primary reader can't parse a file.
type TagReader interface {
	Read(path string) (*RawTags, error)
}

// primaryReader is the default TagReader: dhowden/tag for embedded tags,
// ffprobe for stream properties it doesn't expose, with format-specific
// fallbacks when either one comes up empty.
type primaryReader struct{}

// NewReader returns the default TagReader chain.
func NewReader() TagReader {
	return primaryReader{}
}

// ReadTags is a package-level convenience wrapping NewReader().Read, used
// by callers that don't need to inject a different collaborator.
func ReadTags(path string) (*RawTags, error) {
	return primaryReader{}.Read(path)
}

func (primaryReader) Read(path string) (*RawTags, error) {
	tagResult, tagErr := readWithDhowden(path)
	ffResult, ffErr := readWithFFprobe(path)

	var out *RawTags
	switch {
	case ffErr == nil && ffResult != nil:
		out = ffResult
		overlayTags(out, tagResult)
	case tagErr == nil && tagResult != nil:
		out = tagResult
	default:
		// Both generic readers failed; try a format-specific fallback
		// before giving up entirely.
		fallback, err := readFormatFallback(path)
		if err != nil {
			return nil, fmt.Errorf("all tag readers failed: tag=%v ffprobe=%v fallback=%v", tagErr, ffErr, err)
		}
		out = fallback
	}

	if out.Artist == "" && out.Title == "" {
		if fallback, err := readFormatFallback(path); err == nil && fallback != nil {
			overlayTags(fallback, out)
			out = fallback
		}
	}

	return out, nil
}

func overlayTags(dst, src *RawTags) {
	if src == nil {
		return
	}
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Artist == "" {
		dst.Artist = src.Artist
	}
	if dst.Album == "" {
		dst.Album = src.Album
	}
	if dst.AlbumArtist == "" {
		dst.AlbumArtist = src.AlbumArtist
	}
	if dst.Date == "" {
		dst.Date = src.Date
	}
	if dst.Track == 0 {
		dst.Track, dst.TrackTotal = src.Track, src.TrackTotal
	}
	if dst.Disc == 0 {
		dst.Disc, dst.DiscTotal = src.Disc, src.DiscTotal
	}
	if dst.Format == "" {
		dst.Format = src.Format
	}
	if !dst.Compilation {
		dst.Compilation = src.Compilation
	}
}

func readWithDhowden(path string) (*RawTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	rt := &RawTags{
		Format:      string(m.Format()),
		Artist:      m.Artist(),
		Album:       m.Album(),
		Title:       m.Title(),
		AlbumArtist: m.AlbumArtist(),
	}
	if m.Year() > 0 {
		rt.Date = fmt.Sprintf("%d", m.Year())
	}
	rt.Track, rt.TrackTotal = m.Track()
	rt.Disc, rt.DiscTotal = m.Disc()

	if raw := m.Raw(); raw != nil {
		for _, key := range []string{"TCMP", "cpil", "COMPILATION", "compilation", "Compilation"} {
			if val, ok := raw[key]; ok {
				switch v := val.(type) {
				case string:
					rt.Compilation = v == "1" || strings.EqualFold(v, "true")
				case int:
					rt.Compilation = v == 1
				case bool:
					rt.Compilation = v
				}
				if rt.Compilation {
					break
				}
			}
		}
	}

	rawJSON, _ := json.Marshal(map[string]any{
		"format": m.Format(), "file_type": m.FileType(), "artist": m.Artist(),
		"album": m.Album(), "title": m.Title(), "album_artist": m.AlbumArtist(),
		"genre": m.Genre(), "year": m.Year(),
	})
	rt.RawTagsJSON = string(rawJSON)

	return rt, nil
}

func readWithFFprobe(path string) (*RawTags, error) {
	info, err := RunFFprobe(path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	rt := &RawTags{}
	if info.Format != nil {
		rt.Container = info.Format.FormatName
		if info.Format.Duration != "" {
			var sec float64
			fmt.Sscanf(info.Format.Duration, "%f", &sec)
			rt.DurationMs = int(sec * 1000)
		}
		if info.Format.BitRate != "" {
			var bps int
			fmt.Sscanf(info.Format.BitRate, "%d", &bps)
			rt.BitrateKbps = bps / 1000
		}
		if tags := info.Format.Tags; tags != nil {
			rt.Artist = getTag(tags, "artist", "ARTIST")
			rt.Album = getTag(tags, "album", "ALBUM")
			rt.Title = getTag(tags, "title", "TITLE")
			rt.AlbumArtist = getTag(tags, "album_artist", "ALBUM_ARTIST", "albumartist")
			rt.Date = getTag(tags, "date", "DATE", "year", "YEAR")
			compilation := getTag(tags, "compilation", "COMPILATION", "Compilation")
			rt.Compilation = compilation == "1" || strings.EqualFold(compilation, "true")
			if trackStr := getTag(tags, "track", "TRACK"); trackStr != "" {
				fmt.Sscanf(trackStr, "%d", &rt.Track)
			}
			if discStr := getTag(tags, "disc", "DISC"); discStr != "" {
				fmt.Sscanf(discStr, "%d", &rt.Disc)
			}
		}
	}

	if len(info.Streams) > 0 {
		stream := info.Streams[0]
		rt.Codec = stream.CodecName
		rt.SampleRate = stream.SampleRate
		rt.Channels = stream.Channels
		rt.Lossless = isLosslessCodec(stream.CodecName)
		if stream.BitsPerSample.Value > 0 {
			rt.BitDepth = stream.BitsPerSample.Value
		} else if stream.BitsPerRawSample.Value > 0 {
			rt.BitDepth = stream.BitsPerRawSample.Value
		}
	}

	rawJSON, _ := json.Marshal(info)
	rt.RawTagsJSON = string(rawJSON)

	return rt, nil
}

func getTag(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		if val, ok := tags[key]; ok && val != "" {
			return val
		}
	}
	return ""
}

func isLosslessCodec(codec string) bool {
	codec = strings.ToLower(codec)
	if strings.HasPrefix(codec, "pcm_") {
		return true
	}
	lossless := map[string]bool{
		"flac": true, "alac": true, "ape": true, "wavpack": true,
		"wv": true, "tta": true, "pcm": true, "wav": true, "aiff": true,
	}
	return lossless[codec]
}

// readFormatFallback picks a format-specific secondary reader for files
// that the generic dhowden/tag + ffprobe pair couldn't parse. It covers
// the two cases observed to break dhowden/tag in practice: MP3 files with
// UTF-16 ID3v2 frames it mishandles, and FLAC files lacking a parseable
// STREAMINFO it requires.
func readFormatFallback(path string) (*RawTags, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return readMP3WithID3v2(path)
	case ".flac":
		return readFLACWithGoFlac(path)
	default:
		return nil, fmt.Errorf("no fallback reader for %s", filepath.Ext(path))
	}
}

// readMP3WithID3v2 reads an MP3's tags directly with bogem/id3v2, bypassing
// dhowden/tag entirely.
func readMP3WithID3v2(path string) (*RawTags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("id3v2 open: %w", err)
	}
	defer tag.Close()

	rt := &RawTags{
		Format:      "MP3",
		Artist:      tag.Artist(),
		Album:       tag.Album(),
		Title:       tag.Title(),
		AlbumArtist: getID3TextFrame(tag, "TPE2"),
	}
	if rt.AlbumArtist == "" {
		rt.AlbumArtist = rt.Artist
	}
	if year := tag.Year(); len(year) >= 4 {
		rt.Date = year[:4]
	}
	rt.Track, rt.TrackTotal = parseSlashedNumber(getID3TextFrame(tag, "TRCK"))
	rt.Disc, rt.DiscTotal = parseSlashedNumber(getID3TextFrame(tag, "TPOS"))

	compilation := getID3TextFrame(tag, "TCMP")
	rt.Compilation = compilation == "1"

	return rt, nil
}

func getID3TextFrame(t *id3v2.Tag, frameID string) string {
	frames := t.GetFrames(frameID)
	if len(frames) == 0 {
		return ""
	}
	if tf, ok := frames[0].(id3v2.TextFrame); ok {
		return tf.Text
	}
	return ""
}

func parseSlashedNumber(s string) (num, total int) {
	if s == "" {
		return 0, 0
	}
	parts := strings.SplitN(s, "/", 2)
	fmt.Sscanf(parts[0], "%d", &num)
	if len(parts) == 2 {
		fmt.Sscanf(parts[1], "%d", &total)
	}
	return num, total
}

// readFLACWithGoFlac reads a FLAC file's Vorbis comment block directly with
// go-flac/go-flac and go-flac/flacvorbis, bypassing dhowden/tag. It also
// fills stream properties (sample rate, channels, bit depth) from
// mewkiz/flac's STREAMINFO parser, since neither go-flac library exposes
// them directly.
func readFLACWithGoFlac(path string) (*RawTags, error) {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse flac: %w", err)
	}

	rt := &RawTags{Format: "FLAC", Lossless: true}

	for _, block := range f.Meta {
		if block.Type != goflac.VorbisComment {
			continue
		}
		comment, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		rt.Artist = firstVorbisComment(comment, flacvorbis.FIELD_ARTIST)
		rt.Album = firstVorbisComment(comment, flacvorbis.FIELD_ALBUM)
		rt.Title = firstVorbisComment(comment, flacvorbis.FIELD_TITLE)
		rt.AlbumArtist = firstVorbisComment(comment, "ALBUMARTIST")
		if rt.AlbumArtist == "" {
			rt.AlbumArtist = rt.Artist
		}
		rt.Date = firstVorbisComment(comment, flacvorbis.FIELD_DATE)
		if rt.Date == "" {
			rt.Date = firstVorbisComment(comment, "YEAR")
		}
		fmt.Sscanf(firstVorbisComment(comment, flacvorbis.FIELD_TRACKNUMBER), "%d", &rt.Track)
		fmt.Sscanf(firstVorbisComment(comment, "DISCNUMBER"), "%d", &rt.Disc)
		compilation := firstVorbisComment(comment, "COMPILATION")
		rt.Compilation = compilation == "1" || strings.EqualFold(compilation, "true")
		break
	}

	if stream, err := mflac.ParseFile(path); err == nil {
		defer stream.Close()
		info := stream.Info
		rt.SampleRate = int(info.SampleRate)
		rt.Channels = int(info.NChannels)
		rt.BitDepth = int(info.BitsPerSample)
		if info.SampleRate > 0 {
			rt.DurationMs = int(info.NSamples * 1000 / uint64(info.SampleRate))
		}
	}

	return rt, nil
}

func firstVorbisComment(c *flacvorbis.MetaDataBlockVorbisComment, key string) string {
	vals, err := c.Get(key)
	if err != nil || len(vals) == 0 {
		return ""
	}
	return vals[0]
}
