package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jargis-io/jargis/internal/core"
	"github.com/jargis-io/jargis/internal/models"
)

// Placeholder display names used when no hint is supplied, so downstream
// normalization always has input.
const (
	UnknownCompany = "Unknown Company"
	UnknownJob     = "Unknown Job"
)

const answerPreviewLen = 120

// Config tunes the pipeline.
//
// ChunkMaxLen / ChunkOverlap: character window for embedding chunks.
// EmbedModel: provider model identifier recorded on every embedding row.
// EmbedDim: expected vector dimension; 0 disables the check.
// SourceTag:  default tag stamped on newly inserted documents.
type Config struct {
	ChunkMaxLen  int
	ChunkOverlap int
	EmbedModel   string
	EmbedDim     int
	SourceTag    string
}

// Pipeline orchestrates the two-phase ingestion workflow: Preview parses and
// dedup-checks without mutating storage; Commit performs idempotent upserts
// and embedding generation. Both collaborators are injected so tests can
// substitute fakes.
type Pipeline struct {
	store    core.Store
	embedder core.EmbeddingProvider
	cfg      Config
}

func NewPipeline(store core.Store, embedder core.EmbeddingProvider, cfg Config) *Pipeline {
	if cfg.ChunkMaxLen <= 0 {
		cfg.ChunkMaxLen = DefaultChunkMaxLen
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.SourceTag == "" {
		cfg.SourceTag = "upload-md"
	}
	return &Pipeline{store: store, embedder: embedder, cfg: cfg}
}

// BuildContent assembles the canonical stored form of a section: question
// and answer joined by a blank line, with the separator omitted when either
// side is empty. Every fingerprint site (preview and commit) hashes this
// exact string so duplicate flags stay valid across phases.
func BuildContent(question, answer string) string {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	switch {
	case question == "":
		return answer
	case answer == "":
		return question
	default:
		return question + "\n\n" + answer
	}
}

// ---------- preview ----------

type PreviewDocument struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	Duplicate   bool   `json:"duplicate"`
}

type PreviewMeta struct {
	Company       string `json:"company"`
	Job           string `json:"job"`
	Year          *int   `json:"year"`
	CompanyExists bool   `json:"company_exists"`
	JobExists     bool   `json:"job_exists"`
}

type PreviewQuestion struct {
	Title            string `json:"title"`
	Question         string `json:"question"`
	Answer           string `json:"answer"`
	HashPrefix       string `json:"hash_prefix"`
	Duplicate        bool   `json:"duplicate"`
	ExistsQuestionID *int64 `json:"exists_question_id"`
	ContentPreview   string `json:"content_preview"`
}

type PreviewResult struct {
	Document  PreviewDocument   `json:"document"`
	Meta      PreviewMeta       `json:"meta"`
	Questions []PreviewQuestion `json:"questions"`
}

// Preview decodes, parses and dedup-checks an uploaded document without
// writing anything. Existence is reported as booleans, not ids, so no stale
// state leaks out of a non-committing phase.
func (p *Pipeline) Preview(ctx context.Context, filename string, raw []byte, hintCompany, hintJob string, hintYear *int) (*PreviewResult, error) {
	if !utf8.Valid(raw) {
		return nil, ErrInvalidEncoding
	}
	rawText := string(raw)

	docHash := FullDigest(rawText)
	existingDoc, err := p.store.FindDocumentByHash(ctx, docHash)
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}

	sections := ParseSections(rawText)

	year := hintYear
	if year == nil {
		if candidates := ExtractYearCandidates(rawText); len(candidates) > 0 {
			best := candidates[0]
			for _, y := range candidates[1:] {
				if y > best {
					best = y
				}
			}
			year = &best
		}
	}

	company := hintCompany
	if company == "" {
		company = UnknownCompany
	}
	job := hintJob
	if job == "" {
		job = UnknownJob
	}

	companyExists, err := p.entityExists(ctx, p.store.FindCompany, company)
	if err != nil {
		return nil, fmt.Errorf("find company: %w", err)
	}
	jobExists, err := p.entityExists(ctx, p.store.FindJob, job)
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}

	questions := make([]PreviewQuestion, 0, len(sections))
	for _, sec := range sections {
		prefix := ShortDigest(BuildContent(sec.Question, sec.Answer), PrefixLen)
		existsID, err := p.store.FindQuestionByPrefixYear(ctx, prefix, year)
		if err != nil {
			return nil, fmt.Errorf("find question: %w", err)
		}
		questions = append(questions, PreviewQuestion{
			Title:            sec.Title,
			Question:         sec.Question,
			Answer:           sec.Answer,
			HashPrefix:       prefix,
			Duplicate:        existsID != nil,
			ExistsQuestionID: existsID,
			ContentPreview:   truncateRunes(sec.Answer, answerPreviewLen),
		})
	}

	return &PreviewResult{
		Document: PreviewDocument{
			Filename:    filename,
			ContentHash: docHash,
			Duplicate:   existingDoc != nil,
		},
		Meta: PreviewMeta{
			Company:       company,
			Job:           job,
			Year:          year,
			CompanyExists: companyExists,
			JobExists:     jobExists,
		},
		Questions: questions,
	}, nil
}

func (p *Pipeline) entityExists(ctx context.Context, find func(context.Context, string) (*int64, error), name string) (bool, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return false, nil
	}
	id, err := find(ctx, normalized)
	if err != nil {
		return false, err
	}
	return id != nil, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ---------- commit ----------

type CommitDocument struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	RawText     string `json:"raw_text"`
	SourceTag   string `json:"source_tag"`
}

type CommitMeta struct {
	Company string `json:"company"`
	Job     string `json:"job"`
	Year    *int   `json:"year"`
}

type CommitQuestion struct {
	Title    string `json:"title"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Include  bool   `json:"include"`
}

// CommitRequest is self-contained: it carries the raw text and all user
// edits, so commit never depends on server-side session state from a prior
// preview call.
type CommitRequest struct {
	Document  CommitDocument   `json:"document"`
	Meta      CommitMeta       `json:"meta"`
	Questions []CommitQuestion `json:"questions"`
}

type CommitResult struct {
	DocumentID         int64  `json:"document_id"`
	CompanyID          *int64 `json:"company_id"`
	JobID              *int64 `json:"job_id"`
	Year               *int   `json:"year"`
	InsertedQuestions  int    `json:"inserted_question_count"`
	SkippedQuestions   int    `json:"skipped_question_count"`
	InsertedEmbeddings int    `json:"inserted_embedding_count"`
}

// chunkRef ties one pending chunk back to its question and 1-based sequence
// number. The embedding phase zips provider vectors to these records
// strictly by index.
type chunkRef struct {
	questionID int64
	seq        int
	text       string
}

// Commit persists the included questions and their embeddings. Structural
// upserts (document, company, job, questions) happen first and are
// individually idempotent; the embedding provider is called once with the
// full chunk batch afterwards. A provider failure leaves the structural rows
// committed, and re-running the same payload fills in only what is missing.
func (p *Pipeline) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	log := logrus.WithField("commit_batch", uuid.NewString())

	included := make([]CommitQuestion, 0, len(req.Questions))
	for _, q := range req.Questions {
		if q.Include {
			included = append(included, q)
		}
	}
	if len(included) == 0 {
		return nil, ErrEmptyCommit
	}

	docHash := req.Document.ContentHash
	if docHash == "" {
		if req.Document.RawText == "" {
			return nil, ErrMissingContent
		}
		docHash = FullDigest(req.Document.RawText)
	}

	doc, err := p.store.FindDocumentByHash(ctx, docHash)
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	var docID int64
	if doc != nil {
		// Existing documents are immutable; raw_text is never overwritten.
		docID = doc.ID
	} else {
		if req.Document.RawText == "" {
			return nil, ErrMissingContent
		}
		sourceTag := req.Document.SourceTag
		if sourceTag == "" {
			sourceTag = p.cfg.SourceTag
		}
		docID, err = p.store.InsertDocument(ctx, req.Document.Filename, docHash, req.Document.RawText, sourceTag)
		if err != nil {
			return nil, fmt.Errorf("insert document: %w", err)
		}
		log.WithFields(logrus.Fields{"document_id": docID, "filename": req.Document.Filename}).Info("document inserted")
	}

	companyID, err := p.upsertEntity(ctx, p.store.UpsertCompany, req.Meta.Company)
	if err != nil {
		return nil, fmt.Errorf("upsert company: %w", err)
	}
	jobID, err := p.upsertEntity(ctx, p.store.UpsertJob, req.Meta.Job)
	if err != nil {
		return nil, fmt.Errorf("upsert job: %w", err)
	}
	year := req.Meta.Year

	result := &CommitResult{
		DocumentID: docID,
		CompanyID:  companyID,
		JobID:      jobID,
		Year:       year,
	}

	var pending []chunkRef
	for _, q := range included {
		content := BuildContent(q.Question, q.Answer)
		if content == "" {
			result.SkippedQuestions++
			continue
		}
		questionID, inserted, err := p.resolveQuestion(ctx, &models.Question{
			Content:           content,
			DocumentID:        &docID,
			CompanyID:         companyID,
			JobID:             jobID,
			Title:             q.Title,
			Year:              year,
			ContentHashPrefix: ShortDigest(content, PrefixLen),
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			result.InsertedQuestions++
		} else {
			result.SkippedQuestions++
		}

		// Reused questions may still be missing chunks from a prior partial
		// failure, so chunking always runs.
		source := strings.TrimSpace(q.Answer)
		if source == "" {
			source = strings.TrimSpace(q.Question)
		}
		for seq, text := range ChunkText(source, p.cfg.ChunkMaxLen, p.cfg.ChunkOverlap) {
			pending = append(pending, chunkRef{questionID: questionID, seq: seq + 1, text: text})
		}
	}

	insertedEmb, err := p.embedAndPersist(ctx, pending)
	if err != nil {
		return nil, err
	}
	result.InsertedEmbeddings = insertedEmb

	log.WithFields(logrus.Fields{
		"document_id":         docID,
		"inserted_questions":  result.InsertedQuestions,
		"skipped_questions":   result.SkippedQuestions,
		"inserted_embeddings": result.InsertedEmbeddings,
	}).Info("commit finished")
	return result, nil
}

// resolveQuestion finds an existing question by its NULL-safe identity
// tuple or inserts a new row. True means a row was inserted.
func (p *Pipeline) resolveQuestion(ctx context.Context, q *models.Question) (int64, bool, error) {
	existing, err := p.store.FindQuestion(ctx, q.ContentHashPrefix, q.CompanyID, q.JobID, q.Year)
	if err != nil {
		return 0, false, fmt.Errorf("find question: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}
	id, err := p.store.InsertQuestion(ctx, q)
	if err != nil {
		return 0, false, fmt.Errorf("insert question: %w", err)
	}
	if id == 0 {
		return 0, false, ErrInsertFailure
	}
	return id, true, nil
}

// upsertEntity normalizes a display name and upserts the row keyed by the
// normalized form. An empty normalized name means no row: the foreign key
// stays unset rather than inserting an unnamed entity.
func (p *Pipeline) upsertEntity(ctx context.Context, upsert func(context.Context, string, string) (int64, error), name string) (*int64, error) {
	name = strings.TrimSpace(name)
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, nil
	}
	id, err := upsert(ctx, name, normalized)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// embedAndPersist calls the provider once with the full flat batch, zips the
// vectors back by position, and writes the chunk rows in one transaction
// with duplicate (question_id, chunk_hash) pairs skipped.
func (p *Pipeline) embedAndPersist(ctx context.Context, pending []chunkRef) (int, error) {
	if len(pending) == 0 {
		return 0, nil
	}
	texts := make([]string, len(pending))
	for i, ref := range pending {
		texts[i] = ref.text
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
	}
	if len(vectors) != len(pending) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingProvider, len(vectors), len(pending))
	}

	rows := make([]models.EmbeddingChunk, len(pending))
	for i, ref := range pending {
		if p.cfg.EmbedDim > 0 && len(vectors[i]) != p.cfg.EmbedDim {
			return 0, fmt.Errorf("%w: vector dim %d, expected %d", ErrEmbeddingProvider, len(vectors[i]), p.cfg.EmbedDim)
		}
		rows[i] = models.EmbeddingChunk{
			QuestionID: ref.questionID,
			ChunkID:    ref.seq,
			ChunkText:  ref.text,
			Embedding:  vectors[i],
			Dim:        len(vectors[i]),
			Model:      p.cfg.EmbedModel,
			ChunkHash:  ShortDigest(ref.text, PrefixLen),
		}
	}
	inserted, err := p.store.InsertEmbeddingChunks(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("insert embeddings: %w", err)
	}
	return inserted, nil
}

// ---------- direct text upload ----------

type UploadTextRequest struct {
	Content string `json:"content"`
	Company string `json:"company"`
	Job     string `json:"job"`
	Title   string `json:"title"`
	Year    *int   `json:"year"`
}

type UploadTextResult struct {
	QuestionID int64  `json:"question_id"`
	Chunks     int    `json:"chunks"`
	Model      string `json:"model"`
}

// UploadText ingests a single pasted question/answer text without a backing
// document. It runs the same idempotent upsert discipline as Commit, so
// pasting the same content twice reuses the existing question row.
func (p *Pipeline) UploadText(ctx context.Context, req UploadTextRequest) (*UploadTextResult, error) {
	content := strings.TrimSpace(req.Content)
	chunks := ChunkText(content, p.cfg.ChunkMaxLen, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrEmptyContent
	}

	companyID, err := p.upsertEntity(ctx, p.store.UpsertCompany, req.Company)
	if err != nil {
		return nil, fmt.Errorf("upsert company: %w", err)
	}
	jobID, err := p.upsertEntity(ctx, p.store.UpsertJob, req.Job)
	if err != nil {
		return nil, fmt.Errorf("upsert job: %w", err)
	}

	questionID, _, err := p.resolveQuestion(ctx, &models.Question{
		Content:           content,
		CompanyID:         companyID,
		JobID:             jobID,
		Title:             req.Title,
		Year:              req.Year,
		ContentHashPrefix: ShortDigest(content, PrefixLen),
	})
	if err != nil {
		return nil, err
	}

	pending := make([]chunkRef, len(chunks))
	for i, text := range chunks {
		pending[i] = chunkRef{questionID: questionID, seq: i + 1, text: text}
	}
	if _, err := p.embedAndPersist(ctx, pending); err != nil {
		return nil, err
	}

	return &UploadTextResult{
		QuestionID: questionID,
		Chunks:     len(chunks),
		Model:      p.cfg.EmbedModel,
	}, nil
}
