package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jargis-io/jargis/internal/core"
	"github.com/jargis-io/jargis/internal/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	nextID    int64
	documents []models.Document
	companies map[string]*models.Company
	jobs      map[string]*models.Job
	questions []models.Question
	chunks    []models.EmbeddingChunk
	mutations int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies: make(map[string]*models.Company),
		jobs:      make(map[string]*models.Job),
	}
}

var _ core.Store = (*fakeStore)(nil)

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) FindDocumentByHash(_ context.Context, hash string) (*models.Document, error) {
	for i := range s.documents {
		if s.documents[i].ContentHash == hash {
			d := s.documents[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertDocument(_ context.Context, filename, hash, rawText, sourceTag string) (int64, error) {
	s.mutations++
	doc := models.Document{ID: s.id(), Filename: filename, ContentHash: hash, RawText: rawText, SourceTag: sourceTag}
	s.documents = append(s.documents, doc)
	return doc.ID, nil
}

func (s *fakeStore) UpsertCompany(_ context.Context, name, normalized string) (int64, error) {
	s.mutations++
	if c, ok := s.companies[normalized]; ok {
		c.Name = name
		return c.ID, nil
	}
	c := &models.Company{ID: s.id(), Name: name, NormalizedName: normalized}
	s.companies[normalized] = c
	return c.ID, nil
}

func (s *fakeStore) UpsertJob(_ context.Context, name, normalized string) (int64, error) {
	s.mutations++
	if j, ok := s.jobs[normalized]; ok {
		j.Name = name
		return j.ID, nil
	}
	j := &models.Job{ID: s.id(), Name: name, NormalizedName: normalized}
	s.jobs[normalized] = j
	return j.ID, nil
}

func (s *fakeStore) FindCompany(_ context.Context, normalized string) (*int64, error) {
	if c, ok := s.companies[normalized]; ok {
		id := c.ID
		return &id, nil
	}
	return nil, nil
}

func (s *fakeStore) FindJob(_ context.Context, normalized string) (*int64, error) {
	if j, ok := s.jobs[normalized]; ok {
		id := j.ID
		return &id, nil
	}
	return nil, nil
}

func (s *fakeStore) FindQuestionByPrefixYear(_ context.Context, prefix string, year *int) (*int64, error) {
	for i := range s.questions {
		if s.questions[i].ContentHashPrefix == prefix && intPtrEq(s.questions[i].Year, year) {
			id := s.questions[i].ID
			return &id, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindQuestion(_ context.Context, prefix string, companyID, jobID *int64, year *int) (*int64, error) {
	for i := range s.questions {
		q := &s.questions[i]
		if q.ContentHashPrefix == prefix && int64PtrEq(q.CompanyID, companyID) && int64PtrEq(q.JobID, jobID) && intPtrEq(q.Year, year) {
			id := q.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertQuestion(_ context.Context, q *models.Question) (int64, error) {
	s.mutations++
	stored := *q
	stored.ID = s.id()
	s.questions = append(s.questions, stored)
	return stored.ID, nil
}

func (s *fakeStore) InsertEmbeddingChunks(_ context.Context, chunks []models.EmbeddingChunk) (int, error) {
	s.mutations++
	inserted := 0
	for _, ch := range chunks {
		if s.hasChunk(ch.QuestionID, ch.ChunkHash) {
			continue
		}
		ch.ID = s.id()
		s.chunks = append(s.chunks, ch)
		inserted++
	}
	return inserted, nil
}

func (s *fakeStore) hasChunk(questionID int64, hash string) bool {
	for i := range s.chunks {
		if s.chunks[i].QuestionID == questionID && s.chunks[i].ChunkHash == hash {
			return true
		}
	}
	return false
}

func (s *fakeStore) SearchChunks(context.Context, []float32, models.SearchFilter) ([]models.SearchHit, error) {
	return nil, nil
}

func (s *fakeStore) QuestionChunkTexts(_ context.Context, questionID int64, limit int) ([]string, error) {
	var out []string
	for i := range s.chunks {
		if s.chunks[i].QuestionID == questionID && len(out) < limit {
			out = append(out, s.chunks[i].ChunkText)
		}
	}
	return out, nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

func int64PtrEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intPtrEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type fakeEmbedder struct {
	calls int
	fail  error
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i)}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestPipeline(store core.Store, embedder core.EmbeddingProvider) *Pipeline {
	return NewPipeline(store, embedder, Config{
		ChunkMaxLen:  800,
		ChunkOverlap: 100,
		EmbedModel:   "text-embedding-004",
		SourceTag:    "upload-md",
	})
}

func intPtr(v int) *int { return &v }

func sampleCommit() CommitRequest {
	return CommitRequest{
		Document: CommitDocument{
			Filename: "essay.md",
			RawText:  sampleDoc,
		},
		Meta: CommitMeta{
			Company: "하나은행",
			Job:     "디지털",
			Year:    intPtr(2024),
		},
		Questions: []CommitQuestion{
			{Title: "목표", Question: "목표를 작성해 주세요.", Answer: "신뢰를 주는 디지털 인재가 되겠습니다.", Include: true},
			{Title: "경험", Question: "설득 경험을 작성해 주세요.", Answer: "근거 자료로 팀을 설득했습니다.", Include: true},
		},
	}
}

// ---------------------------------------------------------------------------
// Preview
// ---------------------------------------------------------------------------

func TestPreviewParsesAndResolvesMeta(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	res, err := p.Preview(context.Background(), "essay.md", []byte(sampleDoc), "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "essay.md", res.Document.Filename)
	assert.Equal(t, FullDigest(sampleDoc), res.Document.ContentHash)
	assert.False(t, res.Document.Duplicate)

	assert.Equal(t, UnknownCompany, res.Meta.Company)
	assert.Equal(t, UnknownJob, res.Meta.Job)
	// Max of the extracted year candidates (sampleDoc mentions 2023).
	require.NotNil(t, res.Meta.Year)
	assert.Equal(t, 2023, *res.Meta.Year)
	assert.False(t, res.Meta.CompanyExists)

	require.Len(t, res.Questions, 2)
	for _, q := range res.Questions {
		assert.False(t, q.Duplicate)
		assert.Nil(t, q.ExistsQuestionID)
		assert.Len(t, q.HashPrefix, PrefixLen)
	}
	assert.Equal(t, 0, store.mutations, "preview must not mutate storage")
}

func TestPreviewHintsWin(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	res, err := p.Preview(context.Background(), "essay.md", []byte(sampleDoc), "하나은행", "디지털", intPtr(2021))
	require.NoError(t, err)
	assert.Equal(t, "하나은행", res.Meta.Company)
	assert.Equal(t, "디지털", res.Meta.Job)
	assert.Equal(t, 2021, *res.Meta.Year)
}

func TestPreviewReportsDuplicates(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})
	ctx := context.Background()

	_, err := p.Commit(ctx, sampleCommit())
	require.NoError(t, err)
	mutationsAfterCommit := store.mutations

	res, err := p.Preview(ctx, "essay.md", []byte(sampleDoc), "하나은행", "디지털", intPtr(2024))
	require.NoError(t, err)

	assert.True(t, res.Document.Duplicate)
	assert.True(t, res.Meta.CompanyExists)
	assert.True(t, res.Meta.JobExists)
	assert.Equal(t, mutationsAfterCommit, store.mutations, "preview must not mutate storage")
}

func TestPreviewRejectsInvalidUTF8(t *testing.T) {
	p := newTestPipeline(newFakeStore(), &fakeEmbedder{})
	_, err := p.Preview(context.Background(), "bad.md", []byte{0xff, 0xfe, 0x00}, "", "", nil)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestPreviewTruncatesAnswerPreview(t *testing.T) {
	long := strings.Repeat("가", 200)
	md := "# 자기소개서 1 – [장문]\n\n**질문**\n질문입니다.\n\n**답변**\n" + long
	p := newTestPipeline(newFakeStore(), &fakeEmbedder{})

	res, err := p.Preview(context.Background(), "essay.md", []byte(md), "", "", nil)
	require.NoError(t, err)
	require.Len(t, res.Questions, 1)
	assert.Equal(t, strings.Repeat("가", 120)+"...", res.Questions[0].ContentPreview)
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

func TestCommitInsertsEverything(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	p := newTestPipeline(store, emb)

	res, err := p.Commit(context.Background(), sampleCommit())
	require.NoError(t, err)

	assert.Equal(t, 2, res.InsertedQuestions)
	assert.Equal(t, 0, res.SkippedQuestions)
	assert.Equal(t, 2, res.InsertedEmbeddings)
	require.NotNil(t, res.CompanyID)
	require.NotNil(t, res.JobID)

	require.Len(t, store.documents, 1)
	assert.Equal(t, "upload-md", store.documents[0].SourceTag)
	require.Len(t, store.questions, 2)
	for _, q := range store.questions {
		assert.Equal(t, res.DocumentID, *q.DocumentID)
		assert.Equal(t, *res.CompanyID, *q.CompanyID)
		assert.Equal(t, 2024, *q.Year)
		assert.Len(t, q.ContentHashPrefix, PrefixLen)
		assert.Contains(t, q.Content, "\n\n")
	}

	assert.Equal(t, 1, emb.calls, "one batched provider call per commit")
	require.Len(t, store.chunks, 2)
	for _, ch := range store.chunks {
		assert.Equal(t, 1, ch.ChunkID)
		assert.Equal(t, "text-embedding-004", ch.Model)
		assert.Equal(t, 2, ch.Dim)
		assert.Equal(t, ShortDigest(ch.ChunkText, PrefixLen), ch.ChunkHash)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})
	ctx := context.Background()

	first, err := p.Commit(ctx, sampleCommit())
	require.NoError(t, err)

	second, err := p.Commit(ctx, sampleCommit())
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, *first.CompanyID, *second.CompanyID)
	assert.Equal(t, *first.JobID, *second.JobID)
	assert.Equal(t, 0, second.InsertedQuestions)
	assert.Equal(t, 2, second.SkippedQuestions)
	assert.Equal(t, 0, second.InsertedEmbeddings)

	assert.Len(t, store.documents, 1)
	assert.Len(t, store.questions, 2)
	assert.Len(t, store.chunks, 2)
}

func TestCommitRespectsIncludeFlags(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	req := sampleCommit()
	req.Questions[1].Include = false

	res, err := p.Commit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedQuestions)
	assert.Len(t, store.questions, 1)
}

func TestCommitEmptySelection(t *testing.T) {
	p := newTestPipeline(newFakeStore(), &fakeEmbedder{})

	req := sampleCommit()
	for i := range req.Questions {
		req.Questions[i].Include = false
	}
	_, err := p.Commit(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyCommit)
}

func TestCommitNewDocumentNeedsRawText(t *testing.T) {
	p := newTestPipeline(newFakeStore(), &fakeEmbedder{})

	req := sampleCommit()
	req.Document.RawText = ""
	req.Document.ContentHash = FullDigest(sampleDoc)
	_, err := p.Commit(context.Background(), req)
	assert.ErrorIs(t, err, ErrMissingContent)
}

func TestCommitExistingDocumentWithoutRawText(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})
	ctx := context.Background()

	first, err := p.Commit(ctx, sampleCommit())
	require.NoError(t, err)

	// Re-commit referencing the stored document by hash only.
	req := sampleCommit()
	req.Document.RawText = ""
	req.Document.ContentHash = FullDigest(sampleDoc)
	second, err := p.Commit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)
}

func TestCommitDistinctByYear(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})
	ctx := context.Background()

	reqA := sampleCommit()
	reqA.Meta.Year = intPtr(2023)
	resA, err := p.Commit(ctx, reqA)
	require.NoError(t, err)
	assert.Equal(t, 2, resA.InsertedQuestions)

	reqB := sampleCommit()
	reqB.Meta.Year = intPtr(2024)
	resB, err := p.Commit(ctx, reqB)
	require.NoError(t, err)
	assert.Equal(t, 2, resB.InsertedQuestions, "same fingerprint but different year is a distinct question")

	assert.Len(t, store.questions, 4)
}

func TestCommitUnknownEntitiesLeaveForeignKeysUnset(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	req := sampleCommit()
	req.Meta.Company = "(!!)"
	req.Meta.Job = ""

	res, err := p.Commit(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.CompanyID)
	assert.Nil(t, res.JobID)
	assert.Empty(t, store.companies)
	for _, q := range store.questions {
		assert.Nil(t, q.CompanyID)
		assert.Nil(t, q.JobID)
	}
}

func TestCommitEmbeddingFailureKeepsStructuralRows(t *testing.T) {
	store := newFakeStore()
	failing := &fakeEmbedder{fail: errors.New("rate limited")}
	p := newTestPipeline(store, failing)
	ctx := context.Background()

	_, err := p.Commit(ctx, sampleCommit())
	require.ErrorIs(t, err, ErrEmbeddingProvider)

	assert.Len(t, store.documents, 1, "document survives a provider failure")
	assert.Len(t, store.questions, 2, "questions survive a provider failure")
	assert.Empty(t, store.chunks, "no partial embedding rows")

	// Retrying the same payload with a healthy provider fills in only the
	// missing embeddings.
	retry := newTestPipeline(store, &fakeEmbedder{})
	res, err := retry.Commit(ctx, sampleCommit())
	require.NoError(t, err)
	assert.Equal(t, 0, res.InsertedQuestions)
	assert.Equal(t, 2, res.SkippedQuestions)
	assert.Equal(t, 2, res.InsertedEmbeddings)
	assert.Len(t, store.chunks, 2)
}

func TestCommitRejectsDimMismatch(t *testing.T) {
	store := newFakeStore()
	p := NewPipeline(store, &fakeEmbedder{}, Config{
		ChunkMaxLen:  800,
		ChunkOverlap: 100,
		EmbedModel:   "text-embedding-004",
		EmbedDim:     768, // fakeEmbedder produces 2-dim vectors
		SourceTag:    "upload-md",
	})

	_, err := p.Commit(context.Background(), sampleCommit())
	require.ErrorIs(t, err, ErrEmbeddingProvider)
	assert.Empty(t, store.chunks, "mismatched vectors must not be persisted")
}

func TestCommitAcceptsMatchingDim(t *testing.T) {
	store := newFakeStore()
	p := NewPipeline(store, &fakeEmbedder{}, Config{
		ChunkMaxLen:  800,
		ChunkOverlap: 100,
		EmbedModel:   "text-embedding-004",
		EmbedDim:     2,
		SourceTag:    "upload-md",
	})

	res, err := p.Commit(context.Background(), sampleCommit())
	require.NoError(t, err)
	assert.Equal(t, 2, res.InsertedEmbeddings)
}

func TestCommitChunksLongAnswer(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	long := strings.Repeat("성실하게 일하는 개발자가 되겠습니다. ", 100) // well over one window
	req := CommitRequest{
		Document:  CommitDocument{Filename: "long.md", RawText: "# 자기소개서 1 – [장문]\n" + long},
		Meta:      CommitMeta{Company: "하나은행", Job: "디지털", Year: intPtr(2024)},
		Questions: []CommitQuestion{{Title: "장문", Question: "질문", Answer: long, Include: true}},
	}
	res, err := p.Commit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.InsertedQuestions)
	require.Greater(t, res.InsertedEmbeddings, 1)

	seen := map[int]bool{}
	for _, ch := range store.chunks {
		seen[ch.ChunkID] = true
	}
	for i := 1; i <= len(store.chunks); i++ {
		assert.True(t, seen[i], "chunk sequence numbers must be 1..n, missing %d", i)
	}
}

// ---------------------------------------------------------------------------
// Direct text upload
// ---------------------------------------------------------------------------

func TestUploadText(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	res, err := p.UploadText(context.Background(), UploadTextRequest{
		Content: "협업 갈등을 해결한 경험에 대한 답변입니다.",
		Company: "한화비전",
		Job:     "Platform",
		Title:   "협업",
		Year:    intPtr(2025),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, "text-embedding-004", res.Model)

	require.Len(t, store.questions, 1)
	assert.Nil(t, store.questions[0].DocumentID, "direct uploads have no backing document")
	require.NotNil(t, store.questions[0].CompanyID)
}

func TestUploadTextIdempotent(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})
	ctx := context.Background()

	req := UploadTextRequest{Content: "같은 내용을 두 번 붙여넣습니다.", Year: intPtr(2025)}
	first, err := p.UploadText(ctx, req)
	require.NoError(t, err)
	second, err := p.UploadText(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.QuestionID, second.QuestionID)
	assert.Len(t, store.questions, 1)
	assert.Len(t, store.chunks, 1)
}

func TestUploadTextEmpty(t *testing.T) {
	p := newTestPipeline(newFakeStore(), &fakeEmbedder{})
	_, err := p.UploadText(context.Background(), UploadTextRequest{Content: "   \n "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

// ---------------------------------------------------------------------------
// Canonical content
// ---------------------------------------------------------------------------

func TestBuildContent(t *testing.T) {
	tests := []struct {
		name     string
		question string
		answer   string
		want     string
	}{
		{"both", "질문", "답변", "질문\n\n답변"},
		{"answer only", "", "답변", "답변"},
		{"question only", "질문", "", "질문"},
		{"both empty", "", "", ""},
		{"trims first", " 질문 ", "\n답변\n", "질문\n\n답변"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildContent(tt.question, tt.answer))
		})
	}
}

// Preview and commit must fingerprint the same input, so a preview-computed
// duplicate flag stays valid at commit time.
func TestPreviewAndCommitFingerprintsAgree(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})
	ctx := context.Background()

	req := sampleCommit()
	req.Meta.Company = ""
	req.Meta.Job = ""
	req.Meta.Year = intPtr(2023)
	_, err := p.Commit(ctx, req)
	require.NoError(t, err)

	md := fmt.Sprintf("# 자기소개서 1 – [%s]\n\n**질문**\n%s\n\n**답변**\n%s\n",
		req.Questions[0].Title, req.Questions[0].Question, req.Questions[0].Answer)
	res, err := p.Preview(ctx, "again.md", []byte(md), "", "", intPtr(2023))
	require.NoError(t, err)
	require.Len(t, res.Questions, 1)
	assert.True(t, res.Questions[0].Duplicate, "committed section must be flagged duplicate in a later preview")
	assert.NotNil(t, res.Questions[0].ExistsQuestionID)
}
