package extract

import (
	"context"
	"testing"
)

func TestExtractTextPassthrough(t *testing.T) {
	doc := "# 자기소개서 1 – [목표]\n\n**질문**\n질문입니다.\n"

	tests := []struct {
		name        string
		contentType string
	}{
		{"empty content type", ""},
		{"plain text", "text/plain"},
		{"markdown", "text/markdown"},
		{"x-markdown", "text/x-markdown"},
		{"octet stream", "application/octet-stream"},
		{"charset parameter", "text/plain; charset=utf-8"},
		{"markdown with charset", "text/markdown;charset=UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDocconvExtractor().ExtractText(context.Background(), []byte(doc), tt.contentType)
			if err != nil {
				t.Fatalf("ExtractText(%q): %v", tt.contentType, err)
			}
			if got != doc {
				t.Errorf("ExtractText(%q) altered the payload:\n%q", tt.contentType, got)
			}
		})
	}
}

func TestIsPlainText(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/plain", true},
		{" text/plain ", true},
		{"text/plain; charset=utf-8", true},
		{"application/pdf", false},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", false},
		{"image/png", false},
	}
	for _, tt := range tests {
		if got := isPlainText(tt.contentType); got != tt.want {
			t.Errorf("isPlainText(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
