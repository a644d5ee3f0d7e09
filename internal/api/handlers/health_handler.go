package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jargis-io/jargis/internal/core"
)

type HealthHandler struct {
	store core.Store
}

func NewHealthHandler(store core.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "detail": err.Error()})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
