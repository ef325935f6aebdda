package api

import (
	"net/http"
	"strings"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/blob"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/go-chi/chi/v5"
)

// AIHandler exposes the completion collaborator as request/response proxy
// endpoints.
type AIHandler struct {
	provider advisor.Provider
	blobs    *blob.Store
}

// NewAIHandler creates a new AI proxy handler. Files are only analyzed when
// blobs serves them and the caller uploaded them.
func NewAIHandler(provider advisor.Provider, blobs *blob.Store) *AIHandler {
	return &AIHandler{provider: provider, blobs: blobs}
}

// RegisterRoutes registers AI proxy routes.
func (h *AIHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/ai", func(r chi.Router) {
		r.Use(identity.RequireSession)
		r.Post("/chat", h.Chat)
		r.Post("/analyze-file", h.AnalyzeFile)
	})
}

// Chat returns {content} for {messages, conversationType, attachments?}.
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req advisor.CompletionRequest
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	if len(req.Messages) == 0 {
		Error(w, http.StatusBadRequest, "messages are required")
		return
	}
	for _, m := range req.Messages {
		if !m.Role.Valid() {
			Error(w, http.StatusBadRequest, "message role must be user or assistant")
			return
		}
	}
	if req.ConversationType == "" {
		req.ConversationType = domain.TypeGeneral
	}

	content, err := h.provider.Complete(r.Context(), req)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"content": content})
}

// AnalyzeFile returns {analysis} for {fileUrl, fileName, fileType}.
func (h *AIHandler) AnalyzeFile(w http.ResponseWriter, r *http.Request) {
	var req advisor.FileRequest
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.FileURL) == "" {
		Error(w, http.StatusBadRequest, "fileUrl is required")
		return
	}
	key, err := h.blobs.KeyFromURL(req.FileURL)
	if err != nil || blob.Owner(key) != identity.UserIDFromContext(r.Context()) {
		Error(w, http.StatusBadRequest, "fileUrl must reference one of your uploads")
		return
	}

	analysis, err := h.provider.Analyze(r.Context(), req)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"analysis": analysis})
}
