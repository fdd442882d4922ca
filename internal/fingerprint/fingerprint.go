// Package fingerprint computes the dual-axis identity hashes used to
// recognize a file across renames, moves, and duplicate imports: a
// metadata fingerprint derived from tags (or filename, when tags are
// absent) and a content fingerprint derived from sampled file bytes.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultChunkSize is the number of bytes sampled from the head, middle,
// and tail of a file when computing its content fingerprint.
const DefaultChunkSize = 64 * 1024

// MaxContentHashSize is the size above which content hashing is skipped
// in favor of a size-only sentinel, so a single oversized lossless rip
// doesn't stall an otherwise fast indexing pass.
const MaxContentHashSize = 10 * 1024 * 1024 * 1024 // 10 GiB

// Metadata computes the metadata fingerprint for a file's tags. When both
// artist and title are empty after normalization, it falls back to a
// digest of the lowercased filename stem — the fallback is mandatory:
// without it every untagged file would collide on the same hash.
func Metadata(artist, title, filename string) string {
	normArtist := normalize(artist)
	normTitle := normalize(title)

	if normArtist == "" && normTitle == "" && filename != "" {
		stem := strings.ToLower(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
		return hexMD5(fmt.Sprintf("NO_METADATA:%s", stem))
	}

	return hexMD5(fmt.Sprintf("%s|%s", normArtist, normTitle))
}

// normalize canonicalizes s to NFC before case-folding and trimming, so
// visually identical artist/title strings using different Unicode
// decompositions (e.g. a precomposed "é" vs. "e" + combining acute) hash
// the same.
func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFC.String(s)))
}

func hexMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// Content computes the content fingerprint for the file at path, sampling
// head/middle/tail chunks of chunkSize bytes rather than hashing the
// whole file: O(1) in file length, which matters for multi-GB lossless
// libraries. chunkSize <= 0 selects DefaultChunkSize.
//
// Oversized files (> MaxContentHashSize) yield a deterministic
// "{size}_FILE_TOO_LARGE" sentinel without being read. I/O failures yield
// a sentinel unique to this file's path ("{size}_HASH_FAILED_{hex}") so
// that two files which both fail to hash never compare equal on the
// content axis.
func Content(path string, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	info, err := os.Stat(path)
	if err != nil {
		return failureSentinel(path, 0), err
	}
	size := info.Size()

	if size > MaxContentHashSize {
		return fmt.Sprintf("%d_FILE_TOO_LARGE", size), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return failureSentinel(path, size), err
	}
	defer f.Close()

	h := sha256.New()
	io.WriteString(h, strconv.FormatInt(size, 10))

	buf := make([]byte, chunkSize)

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return failureSentinel(path, size), err
	}
	h.Write(buf[:n])

	if size >= int64(4*chunkSize) {
		if _, err := f.Seek(size/2, io.SeekStart); err != nil {
			return failureSentinel(path, size), err
		}
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return failureSentinel(path, size), err
		}
		h.Write(buf[:n])
	}

	if size >= int64(2*chunkSize) {
		if _, err := f.Seek(size-int64(chunkSize), io.SeekStart); err != nil {
			return failureSentinel(path, size), err
		}
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return failureSentinel(path, size), err
		}
		h.Write(buf[:n])
	}

	return fmt.Sprintf("%d_%x", size, h.Sum(nil)), nil
}

// failureSentinel builds a per-file-unique "hash unavailable" marker.
// Using the path (rather than a shared "HASH_FAILED" constant) keeps two
// files that both fail to hash from comparing equal on the content axis.
func failureSentinel(path string, size int64) string {
	sum := md5.Sum([]byte(path))
	return fmt.Sprintf("%d_HASH_FAILED_%x", size, sum[:6])
}

// IsFailureSentinel reports whether hash looks like a Content() failure
// marker rather than a real sampled digest, so callers can treat it as
// "no content hash available."
func IsFailureSentinel(hash string) bool {
	return strings.Contains(hash, "_HASH_FAILED_")
}

// IsTooLargeSentinel reports whether hash is the oversized-file marker.
func IsTooLargeSentinel(hash string) bool {
	return strings.HasSuffix(hash, "_FILE_TOO_LARGE")
}
