package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jargis-io/jargis/internal/config"
	"github.com/jargis-io/jargis/internal/core"
	"github.com/jargis-io/jargis/internal/models"
)

// Client implements core.Store on Postgres + pgvector through the pgx
// stdlib driver. All upserts rely on unique-constraint conflict handling so
// concurrent commits of the same identity key cannot duplicate rows.
type Client struct {
	db *sql.DB
}

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for a small API service.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &Client{db: sqlDB}, nil
}

var _ core.Store = (*Client)(nil)

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ---------- documents ----------

func (c *Client) FindDocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	const q = `
		SELECT id, filename, content_hash, raw_text, source_tag, created_at
		FROM documents WHERE content_hash = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, hash).Scan(
		&d.ID, &d.Filename, &d.ContentHash, &d.RawText, &d.SourceTag, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// InsertDocument inserts a new document row. A concurrent insert of the same
// content hash is absorbed: the existing row's id is returned instead.
func (c *Client) InsertDocument(ctx context.Context, filename, hash, rawText, sourceTag string) (int64, error) {
	const q = `
		INSERT INTO documents (filename, content_hash, raw_text, source_tag)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id
	`
	var id int64
	err := c.db.QueryRowContext(ctx, q, filename, hash, rawText, sourceTag).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = c.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE content_hash = $1`, hash).Scan(&id)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ---------- companies / jobs ----------

func (c *Client) UpsertCompany(ctx context.Context, name, normalizedName string) (int64, error) {
	return c.upsertNamed(ctx, "companies", name, normalizedName)
}

func (c *Client) UpsertJob(ctx context.Context, name, normalizedName string) (int64, error) {
	return c.upsertNamed(ctx, "jobs", name, normalizedName)
}

func (c *Client) upsertNamed(ctx context.Context, table, name, normalizedName string) (int64, error) {
	q := fmt.Sprintf(`
		INSERT INTO %s (name, normalized_name)
		VALUES ($1, $2)
		ON CONFLICT (normalized_name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, table)
	var id int64
	if err := c.db.QueryRowContext(ctx, q, name, normalizedName).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Client) FindCompany(ctx context.Context, normalizedName string) (*int64, error) {
	return c.findNamed(ctx, "companies", normalizedName)
}

func (c *Client) FindJob(ctx context.Context, normalizedName string) (*int64, error) {
	return c.findNamed(ctx, "jobs", normalizedName)
}

func (c *Client) findNamed(ctx context.Context, table, normalizedName string) (*int64, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE normalized_name = $1`, table)
	var id int64
	err := c.db.QueryRowContext(ctx, q, normalizedName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ---------- questions ----------

func (c *Client) FindQuestionByPrefixYear(ctx context.Context, prefix string, year *int) (*int64, error) {
	const q = `
		SELECT id FROM questions
		WHERE content_hash_prefix = $1
		  AND year IS NOT DISTINCT FROM $2
		ORDER BY id
		LIMIT 1
	`
	return scanOptionalID(c.db.QueryRowContext(ctx, q, prefix, year))
}

func (c *Client) FindQuestion(ctx context.Context, prefix string, companyID, jobID *int64, year *int) (*int64, error) {
	const q = `
		SELECT id FROM questions
		WHERE content_hash_prefix = $1
		  AND company_id IS NOT DISTINCT FROM $2
		  AND job_id IS NOT DISTINCT FROM $3
		  AND year IS NOT DISTINCT FROM $4
	`
	return scanOptionalID(c.db.QueryRowContext(ctx, q, prefix, companyID, jobID, year))
}

// InsertQuestion inserts a question row. If a concurrent commit already
// inserted the same identity tuple, the conflict is absorbed and the
// existing id is returned.
func (c *Client) InsertQuestion(ctx context.Context, question *models.Question) (int64, error) {
	const q = `
		INSERT INTO questions
			(content, document_id, company_id, job_id, title, year, content_hash_prefix)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT questions_identity DO NOTHING
		RETURNING id
	`
	var id int64
	err := c.db.QueryRowContext(ctx, q,
		question.Content, question.DocumentID, question.CompanyID, question.JobID,
		question.Title, question.Year, question.ContentHashPrefix,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		existing, ferr := c.FindQuestion(ctx, question.ContentHashPrefix, question.CompanyID, question.JobID, question.Year)
		if ferr != nil {
			return 0, ferr
		}
		if existing == nil {
			return 0, nil
		}
		return *existing, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func scanOptionalID(row *sql.Row) (*int64, error) {
	var id int64
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ---------- embeddings ----------

// InsertEmbeddingChunks writes the batch in one transaction. Rows whose
// (question_id, chunk_hash) already exists are skipped, which makes commit
// retries idempotent. The vector is bound as the textual pgvector literal.
func (c *Client) InsertEmbeddingChunks(ctx context.Context, chunks []models.EmbeddingChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}

	const q = `
		INSERT INTO embeddings
			(question_id, chunk_id, chunk_text, embedding, dim, model, chunk_hash)
		VALUES ($1, $2, $3, CAST($4 AS vector), $5, $6, $7)
		ON CONFLICT (question_id, chunk_hash) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for i := range chunks {
		ch := &chunks[i]
		res, err := stmt.ExecContext(ctx,
			ch.QuestionID, ch.ChunkID, ch.ChunkText, VectorLiteral(ch.Embedding),
			ch.Dim, ch.Model, ch.ChunkHash,
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ---------- search / draft ----------

// SearchChunks runs nearest-neighbor over stored vectors with optional
// relational filters. Distance is pgvector's <-> operator.
func (c *Client) SearchChunks(ctx context.Context, queryVec []float32, filter models.SearchFilter) ([]models.SearchHit, error) {
	if filter.TopK <= 0 {
		filter.TopK = 5
	}

	where := ""
	args := []any{pgvector.NewVector(queryVec)}
	addFilter := func(clause string, value any) {
		args = append(args, value)
		cond := fmt.Sprintf(clause, len(args))
		if where == "" {
			where = "WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	if filter.Company != "" {
		addFilter("c.name ILIKE $%d", "%"+filter.Company+"%")
	}
	if filter.Job != "" {
		addFilter("j.name ILIKE $%d", "%"+filter.Job+"%")
	}
	if filter.YearMin != nil {
		addFilter("q.year >= $%d", *filter.YearMin)
	}
	if filter.YearMax != nil {
		addFilter("q.year <= $%d", *filter.YearMax)
	}
	args = append(args, filter.TopK)

	query := fmt.Sprintf(`
		SELECT
			q.id                    AS question_id,
			e.chunk_id              AS chunk_id,
			q.title                 AS title,
			LEFT(e.chunk_text, 240) AS snippet,
			c.name                  AS company,
			j.name                  AS job,
			q.year                  AS year,
			(e.embedding <-> $1)       AS distance,
			(1 - (e.embedding <-> $1)) AS similarity
		FROM embeddings e
		JOIN questions q ON q.id = e.question_id
		LEFT JOIN companies c ON c.id = q.company_id
		LEFT JOIN jobs j ON j.id = q.job_id
		%s
		ORDER BY distance ASC
		LIMIT $%d
	`, where, len(args))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(
			&h.QuestionID, &h.ChunkID, &h.Title, &h.Snippet,
			&h.Company, &h.Job, &h.Year, &h.Distance, &h.Similarity,
		); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (c *Client) QuestionChunkTexts(ctx context.Context, questionID int64, limit int) ([]string, error) {
	const q = `
		SELECT chunk_text
		FROM embeddings
		WHERE question_id = $1
		ORDER BY chunk_id ASC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, questionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}
