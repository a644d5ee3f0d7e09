package models

import (
	"time"
)

// Document is one uploaded essay file, stored immutably. ContentHash is the
// full SHA-256 of the raw text and the sole dedup key for re-uploads.
type Document struct {
	ID          int64     `db:"id" json:"id"`
	Filename    string    `db:"filename" json:"filename"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	RawText     string    `db:"raw_text" json:"-"`
	SourceTag   string    `db:"source_tag" json:"source_tag"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Company is a referenced employer. NormalizedName is the lookup key;
// Name preserves the display form as entered.
type Company struct {
	ID             int64  `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	NormalizedName string `db:"normalized_name" json:"normalized_name"`
}

// Job is a referenced position, keyed the same way as Company.
type Job struct {
	ID             int64  `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	NormalizedName string `db:"normalized_name" json:"normalized_name"`
}

// Question is one question/answer unit. DocumentID is nil for direct text
// uploads. Identity is (ContentHashPrefix, CompanyID, JobID, Year) with
// NULL-safe equality.
type Question struct {
	ID                int64     `db:"id" json:"id"`
	Content           string    `db:"content" json:"content"`
	DocumentID        *int64    `db:"document_id" json:"document_id"`
	CompanyID         *int64    `db:"company_id" json:"company_id"`
	JobID             *int64    `db:"job_id" json:"job_id"`
	Title             string    `db:"title" json:"title"`
	Year              *int      `db:"year" json:"year"`
	ContentHashPrefix string    `db:"content_hash_prefix" json:"content_hash_prefix"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// EmbeddingChunk is one embedded segment of a question's text. ChunkID is
// the 1-based sequence within the question; ChunkHash dedupes retries.
type EmbeddingChunk struct {
	ID         int64     `db:"id" json:"id"`
	QuestionID int64     `db:"question_id" json:"question_id"`
	ChunkID    int       `db:"chunk_id" json:"chunk_id"`
	ChunkText  string    `db:"chunk_text" json:"chunk_text"`
	Embedding  []float32 `db:"embedding" json:"-"`
	Dim        int       `db:"dim" json:"dim"`
	Model      string    `db:"model" json:"model"`
	ChunkHash  string    `db:"chunk_hash" json:"chunk_hash"`
}

// SearchFilter narrows a vector similarity query by relational predicates.
type SearchFilter struct {
	Company string
	Job     string
	YearMin *int
	YearMax *int
	TopK    int
}

// SearchHit is one nearest-neighbor result joined back to its question.
// Distance is the pgvector distance (lower is closer); Similarity is
// 1 - distance, reported for convenience.
type SearchHit struct {
	QuestionID int64   `json:"question_id"`
	ChunkID    int     `json:"chunk_id"`
	Title      *string `json:"title"`
	Snippet    string  `json:"snippet"`
	Company    *string `json:"company"`
	Job        *string `json:"job"`
	Year       *int    `json:"year"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}
