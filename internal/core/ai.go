package core

import "context"

// EmbeddingProvider converts texts to fixed-dimension vectors. The returned
// slice must preserve input order and length; callers zip results back to
// source chunks positionally.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
