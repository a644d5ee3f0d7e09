package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jargis-io/jargis/internal/core"
)

type DraftHandler struct {
	store    core.Store
	llm      core.LLMProvider
	genModel string
}

func NewDraftHandler(store core.Store, llm core.LLMProvider, genModel string) *DraftHandler {
	return &DraftHandler{store: store, llm: llm, genModel: genModel}
}

type DraftRequest struct {
	QuestionID int64 `json:"question_id"`
	TopK       int   `json:"top_k"`
}

type DraftResponse struct {
	QuestionID int64  `json:"question_id"`
	Draft      string `json:"draft"`
	Model      string `json:"model"`
}

const draftSystemPrompt = "You are a helpful assistant that drafts Korean job application answers."

// Draft loads the question's stored chunks and asks the LLM for a short
// Korean draft answer grounded on them.
func (h *DraftHandler) Draft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 3
	} else if req.TopK > 10 {
		req.TopK = 10
	}

	texts, err := h.store.QuestionChunkTexts(r.Context(), req.QuestionID, req.TopK)
	if err != nil {
		http.Error(w, fmt.Sprintf("load chunks failed: %v", err), http.StatusInternalServerError)
		return
	}
	if len(texts) == 0 {
		http.Error(w, fmt.Sprintf("no embeddings found for question %d", req.QuestionID), http.StatusNotFound)
		return
	}

	userPrompt := fmt.Sprintf(
		"다음 자기소개서 문항 관련 내용을 참고해 주세요:\n\n%s\n\n이 문항에 대해 300자 내외의 한국어 초안을 작성해 주세요.",
		strings.Join(texts, "\n\n"),
	)

	draft, err := h.llm.Generate(r.Context(), draftSystemPrompt, userPrompt)
	if err != nil {
		http.Error(w, fmt.Sprintf("draft generation failed: %v", err), http.StatusBadGateway)
		return
	}

	writeJSON(w, DraftResponse{
		QuestionID: req.QuestionID,
		Draft:      strings.TrimSpace(draft),
		Model:      h.genModel,
	})
}
