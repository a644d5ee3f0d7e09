package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/jargis-io/jargis/internal/core"
)

var _ core.Extractor = (*DocconvExtractor)(nil)

// DocconvExtractor turns uploaded files into plain text. Markdown and plain
// text pass through untouched so the section parser sees the original
// convention; binary formats (docx, pdf) are converted with docconv.
type DocconvExtractor struct{}

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if isPlainText(contentType) {
		return string(data), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res.Body, nil
}

func isPlainText(contentType string) bool {
	base := contentType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	switch strings.TrimSpace(base) {
	case "", "text/plain", "text/markdown", "text/x-markdown", "application/octet-stream":
		return true
	}
	return false
}
