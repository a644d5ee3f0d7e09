package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jargis-io/jargis/internal/config"
	"github.com/jargis-io/jargis/internal/core"
	"github.com/jargis-io/jargis/internal/core/ingest"
)

const maxUploadBytes = 16 << 20

// UploadHandler serves the two-phase document workflow (preview, commit)
// and the direct text upload endpoint.
type UploadHandler struct {
	pipeline  *ingest.Pipeline
	extractor core.Extractor
	archive   core.ObjectClient // nil when archiving is disabled
	cfg       *config.Config
}

func NewUploadHandler(pipeline *ingest.Pipeline, extractor core.Extractor, archive core.ObjectClient, cfg *config.Config) *UploadHandler {
	return &UploadHandler{pipeline: pipeline, extractor: extractor, archive: archive, cfg: cfg}
}

// Preview parses an uploaded file and reports duplicate status without
// touching storage.
func (h *UploadHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	text, err := h.extractor.ExtractText(r.Context(), data, contentType)
	if err != nil {
		http.Error(w, fmt.Sprintf("text extraction failed: %v", err), http.StatusBadRequest)
		return
	}

	var hintYear *int
	if v := r.FormValue("hint_year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "hint_year must be an integer", http.StatusBadRequest)
			return
		}
		hintYear = &y
	}

	res, err := h.pipeline.Preview(
		r.Context(),
		filepath.Base(header.Filename),
		[]byte(text),
		strings.TrimSpace(r.FormValue("hint_company")),
		strings.TrimSpace(r.FormValue("hint_job")),
		hintYear,
	)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, res)
}

// Commit persists the payload's included questions and their embeddings.
// The payload is self-contained; no state from a prior preview is needed.
func (h *UploadHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req ingest.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.pipeline.Commit(r.Context(), req)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	if h.archive != nil && req.Document.RawText != "" {
		key := fmt.Sprintf("documents/%s/%s", ingest.FullDigest(req.Document.RawText), filepath.Base(req.Document.Filename))
		if _, aerr := h.archive.UploadFile(r.Context(), h.cfg.ArchiveBucket, key, []byte(req.Document.RawText), "text/markdown"); aerr != nil {
			// Best effort: the database keeps the authoritative raw text.
			logrus.WithError(aerr).WithField("key", key).Warn("raw upload archive failed")
		}
	}

	writeJSON(w, res)
}

// UploadText ingests one pasted question/answer text directly.
func (h *UploadHandler) UploadText(w http.ResponseWriter, r *http.Request) {
	var req ingest.UploadTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.pipeline.UploadText(r.Context(), req)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, res)
}

// Archived serves the original archived bytes of a committed document from
// object storage. 404 when archiving is disabled or the object is missing.
func (h *UploadHandler) Archived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		http.Error(w, "archiving is disabled", http.StatusNotFound)
		return
	}

	hash := chi.URLParam(r, "hash")
	filename := filepath.Base(chi.URLParam(r, "filename"))
	if hash == "" || filename == "" || filename == "." || filename == "/" {
		http.Error(w, "invalid archive path", http.StatusBadRequest)
		return
	}

	key := fmt.Sprintf("documents/%s/%s", hash, filename)
	data, err := h.archive.GetFile(r.Context(), h.cfg.ArchiveBucket, key)
	if err != nil {
		http.Error(w, fmt.Sprintf("archive object not found: %v", err), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write(data)
}

func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidEncoding),
		errors.Is(err, ingest.ErrEmptyCommit),
		errors.Is(err, ingest.ErrEmptyContent),
		errors.Is(err, ingest.ErrMissingContent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ingest.ErrEmbeddingProvider):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		logrus.WithError(err).Error("ingestion failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
