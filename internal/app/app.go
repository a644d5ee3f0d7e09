package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jargis-io/jargis/internal/config"
	"github.com/jargis-io/jargis/internal/core"
	db "github.com/jargis-io/jargis/internal/core/database"
	"github.com/jargis-io/jargis/internal/core/extract"
	"github.com/jargis-io/jargis/internal/core/ingest"
	"github.com/jargis-io/jargis/internal/core/llm"
	objectclient "github.com/jargis-io/jargis/internal/core/object-client"
)

// App owns the constructed dependencies. Everything is built here and passed
// down explicitly; no package-level singletons.
type App struct {
	Store    core.Store
	Embedder *llm.GeminiEmbedder
	LLM      *llm.GeminiLLM
	Pipeline *ingest.Pipeline
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logrus.Info("database initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the LLM: %w", err)
	}

	var archive core.ObjectClient
	if cfg.ArchiveBucket != "" {
		archive, err = objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the archive client: %w", err)
		}
	}

	pipeline := ingest.NewPipeline(store, embedder, ingest.Config{
		ChunkMaxLen:  cfg.ChunkMaxLen,
		ChunkOverlap: cfg.ChunkOverlap,
		EmbedModel:   cfg.EmbedModel,
		EmbedDim:     cfg.EmbedDim,
		SourceTag:    cfg.SourceTag,
	})

	extractor := extract.NewDocconvExtractor()

	server := NewServer(cfg, store, embedder, llmProvider, pipeline, extractor, archive)

	return &App{
		Store:    store,
		Embedder: embedder,
		LLM:      llmProvider,
		Pipeline: pipeline,
		Server:   server,
	}, nil
}

func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
