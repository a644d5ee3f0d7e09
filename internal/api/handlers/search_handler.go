package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jargis-io/jargis/internal/core"
	"github.com/jargis-io/jargis/internal/models"
)

type SearchHandler struct {
	store      core.Store
	embedder   core.EmbeddingProvider
	embedModel string
}

func NewSearchHandler(store core.Store, embedder core.EmbeddingProvider, embedModel string) *SearchHandler {
	return &SearchHandler{store: store, embedder: embedder, embedModel: embedModel}
}

type SearchRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
	Company string `json:"company"`
	Job     string `json:"job"`
	YearMin *int   `json:"year_min"`
	YearMax *int   `json:"year_max"`
}

type SearchResponse struct {
	Hits  []models.SearchHit `json:"hits"`
	Model string             `json:"model"`
}

// Search embeds the query and runs nearest-neighbor over stored chunks with
// the requested relational filters.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		http.Error(w, "empty query", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	} else if req.TopK > 50 {
		req.TopK = 50
	}

	vecs, err := h.embedder.EmbedTexts(r.Context(), []string{query})
	if err != nil {
		http.Error(w, fmt.Sprintf("embedding failed: %v", err), http.StatusBadGateway)
		return
	}
	if len(vecs) == 0 {
		http.Error(w, "embedding provider returned no vector", http.StatusBadGateway)
		return
	}

	hits, err := h.store.SearchChunks(r.Context(), vecs[0], models.SearchFilter{
		Company: strings.TrimSpace(req.Company),
		Job:     strings.TrimSpace(req.Job),
		YearMin: req.YearMin,
		YearMax: req.YearMax,
		TopK:    req.TopK,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}

	writeJSON(w, SearchResponse{Hits: hits, Model: h.embedModel})
}
