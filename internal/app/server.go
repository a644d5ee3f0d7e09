package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/jargis-io/jargis/internal/api/handlers"
	"github.com/jargis-io/jargis/internal/config"
	"github.com/jargis-io/jargis/internal/core"
	"github.com/jargis-io/jargis/internal/core/ingest"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.Store, emb core.EmbeddingProvider, llm core.LLMProvider, pipeline *ingest.Pipeline, extractor core.Extractor, archive core.ObjectClient) *Server {
	healthHandler := handlers.NewHealthHandler(store)
	uploadHandler := handlers.NewUploadHandler(pipeline, extractor, archive, cfg)
	searchHandler := handlers.NewSearchHandler(store, emb, cfg.EmbedModel)
	draftHandler := handlers.NewDraftHandler(store, llm, cfg.GenModel)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", healthHandler.Healthz)
	r.Post("/upload-md/preview", uploadHandler.Preview)
	r.Post("/upload-md/commit", uploadHandler.Commit)
	r.Get("/upload-md/archive/{hash}/{filename}", uploadHandler.Archived)
	r.Post("/upload", uploadHandler.UploadText)
	r.Post("/search", searchHandler.Search)
	r.Post("/draft", draftHandler.Draft)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	logrus.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
