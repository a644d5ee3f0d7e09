package ingest

import "errors"

// Failure sites are all at I/O boundaries; parsing and normalization are
// total. Handlers map these sentinels to HTTP statuses.
var (
	// ErrInvalidEncoding means the uploaded bytes are not valid UTF-8.
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")

	// ErrEmptyCommit means no questions were selected for commit.
	ErrEmptyCommit = errors.New("no questions selected for commit")

	// ErrEmptyContent means a direct text upload was empty after trimming.
	ErrEmptyContent = errors.New("empty content after preprocessing")

	// ErrMissingContent means a new document was committed without raw text.
	ErrMissingContent = errors.New("raw_text required for a new document")

	// ErrInsertFailure means storage returned no row where one was expected
	// after an insert. Internal consistency fault, never retried.
	ErrInsertFailure = errors.New("storage returned no row after insert")

	// ErrEmbeddingProvider wraps any failure from the external embedding
	// call. Structural rows committed before the call stay committed; the
	// same payload can be retried and only missing embeddings are created.
	ErrEmbeddingProvider = errors.New("embedding provider failure")
)
