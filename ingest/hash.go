package ingest

import (
	"crypto/sha256"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Content hashes are 16-byte truncations of SHA-256 over a deterministic
// normalization, so the same logical content always dedups regardless of
// how the source app encoded it.

// HashText fingerprints text after NFC normalization.
func HashText(text string) [16]byte {
	return truncate(sha256.Sum256([]byte(norm.NFC.String(text))))
}

// HashPixels fingerprints an image by its decoded pixel buffer, making the
// hash independent of the on-pasteboard encoding.
func HashPixels(pixels []byte) [16]byte {
	return truncate(sha256.Sum256(pixels))
}

// HashFileList fingerprints a file set by its sorted path list.
func HashFileList(paths []string) [16]byte {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	return truncate(sha256.Sum256([]byte(strings.Join(sorted, "\x00"))))
}

func truncate(sum [32]byte) [16]byte {
	var out [16]byte
	copy(out[:], sum[:16])
	return out
}
