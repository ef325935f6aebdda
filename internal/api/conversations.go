package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/career-advisor/internal/conversation"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/exchange"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/ashureev/career-advisor/internal/render"
	"github.com/go-chi/chi/v5"
)

// ConversationHandler handles conversation and message endpoints.
type ConversationHandler struct {
	conversations *conversation.Service
	exchange      *exchange.Service
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(conversations *conversation.Service, exchange *exchange.Service) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, exchange: exchange}
}

// RegisterRoutes registers conversation routes. Every route requires a session.
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/conversations", func(r chi.Router) {
		r.Use(identity.RequireSession)
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/messages", h.SendMessage)
		r.Get("/{id}/export", h.Export)
	})
}

// List returns the caller's conversations, most recently updated first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.conversations.List(r.Context(), identity.SessionFromContext(r.Context()))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, convs)
}

type createConversationRequest struct {
	Type           domain.ConversationType `json:"type"`
	Title          string                  `json:"title,omitempty"`
	DocumentID     string                  `json:"documentId,omitempty"`
	JobDescription string                  `json:"jobDescription,omitempty"`
	Blank          bool                    `json:"blank,omitempty"`
}

// Create creates a conversation. Unless blank is set it is seeded with the
// persona's greeting.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = domain.TypeGeneral
	}
	session := identity.SessionFromContext(r.Context())

	if req.Blank {
		conv, err := h.conversations.Create(r.Context(), session, req.Title, req.Type, domain.ConversationMetadata{
			DocumentID:     req.DocumentID,
			JobDescription: req.JobDescription,
		})
		if err != nil {
			Fail(w, r, err)
			return
		}
		JSON(w, http.StatusCreated, conv)
		return
	}

	conv, err := h.conversations.CreateSpecialized(r.Context(), session, req.Type, req.DocumentID, req.JobDescription)
	if err != nil && conv == nil {
		Fail(w, r, err)
		return
	}
	if err != nil {
		// The conversation exists without its greeting.
		slog.Warn("Conversation created without seed message", "conversation_id", conv.ID, "error", err)
	}
	JSON(w, http.StatusCreated, conv)
}

// Get returns a conversation with its ordered messages.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	cwm, err := h.conversations.FetchWithMessages(r.Context(), identity.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, cwm)
}

// Update patches a conversation's title or metadata.
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch domain.ConversationPatch
	if err := decode(r, &patch); err != nil {
		Fail(w, r, err)
		return
	}
	conv, err := h.conversations.Update(r.Context(), identity.SessionFromContext(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// Delete removes a conversation and its messages.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), identity.SessionFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// SendMessage runs one exchange and returns the assistant's reply.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	reply, err := h.exchange.SendMessage(r.Context(), identity.SessionFromContext(r.Context()), chi.URLParam(r, "id"), req.Content, req.Attachments)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, reply)
}

// Export renders the conversation as a standalone HTML document.
func (h *ConversationHandler) Export(w http.ResponseWriter, r *http.Request) {
	cwm, err := h.conversations.FetchWithMessages(r.Context(), identity.SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	doc, err := render.ConversationHTML(cwm.Conversation, cwm.Messages, time.Now())
	if err != nil {
		Fail(w, r, fmt.Errorf("render export: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="conversation-%s.html"`, cwm.Conversation.ID))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Debug("Failed to write export", "conversation_id", cwm.Conversation.ID, "error", err)
	}
}
