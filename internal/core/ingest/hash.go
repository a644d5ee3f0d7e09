package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// PrefixLen is the truncated digest length used for question and chunk
// identity keys.
const PrefixLen = 16

// FullDigest returns the SHA-256 hex digest (64 chars) of text. The digest
// is an identity key, not a security primitive.
func FullDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the first n hex characters of FullDigest(text).
func ShortDigest(text string, n int) string {
	full := FullDigest(text)
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}
