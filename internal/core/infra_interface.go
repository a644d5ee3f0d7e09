package core

import (
	"context"

	"github.com/jargis-io/jargis/internal/models"
)

// Store defines all persistence operations the pipeline and handlers need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific
// DB. Upsert operations must be atomic at the storage layer: concurrent
// commits of the same identity key resolve via unique-constraint conflict
// handling, never read-then-write races.
type Store interface {
	FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error)
	InsertDocument(ctx context.Context, filename, hash, rawText, sourceTag string) (int64, error)

	// UpsertCompany and UpsertJob insert-or-refresh keyed by normalized name
	// and return the row id. Callers must not pass an empty normalized name.
	UpsertCompany(ctx context.Context, name, normalizedName string) (int64, error)
	UpsertJob(ctx context.Context, name, normalizedName string) (int64, error)
	FindCompany(ctx context.Context, normalizedName string) (*int64, error)
	FindJob(ctx context.Context, normalizedName string) (*int64, error)

	// FindQuestionByPrefixYear matches (content_hash_prefix, year) with
	// NULL-safe year equality; the preview phase uses it.
	FindQuestionByPrefixYear(ctx context.Context, prefix string, year *int) (*int64, error)
	// FindQuestion matches the full identity tuple, NULL-safe on every
	// nullable component; the commit phase uses it.
	FindQuestion(ctx context.Context, prefix string, companyID, jobID *int64, year *int) (*int64, error)
	InsertQuestion(ctx context.Context, q *models.Question) (int64, error)

	// InsertEmbeddingChunks writes a batch in one transaction, skipping rows
	// whose (question_id, chunk_hash) already exists. Returns how many rows
	// were actually inserted.
	InsertEmbeddingChunks(ctx context.Context, chunks []models.EmbeddingChunk) (int, error)

	SearchChunks(ctx context.Context, queryVec []float32, filter models.SearchFilter) ([]models.SearchHit, error)
	QuestionChunkTexts(ctx context.Context, questionID int64, limit int) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage used to
// archive raw uploads.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// Extractor converts an uploaded file into plain text. Markdown and plain
// text pass through unchanged; binary formats go through a converter.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
