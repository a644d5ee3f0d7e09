package ingest

import "strings"

// Default chunking knobs: 800-character windows with 100 characters of
// overlap. Character-count based, not token-aware.
const (
	DefaultChunkMaxLen  = 800
	DefaultChunkOverlap = 100
)

// ChunkText splits text into overlapping fixed-size segments for embedding.
// Windows walk the rune sequence; each trimmed non-empty window is emitted.
// Empty or whitespace-only input yields no chunks. The overlap must stay
// below maxLen for the walk to terminate, so degenerate configuration is
// clamped and every iteration advances by at least one rune.
func ChunkText(text string, maxLen, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxLen <= 0 {
		maxLen = DefaultChunkMaxLen
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxLen {
		overlap = maxLen - 1
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for start < n {
		end := start + maxLen
		if end > n {
			end = n
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}
