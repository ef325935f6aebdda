package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// ClientConfig is what the frontend needs to know about the server.
type ClientConfig struct {
	AIProvider        string                    `json:"ai_provider"`
	OAuthProviders    []string                  `json:"oauth_providers"`
	ConversationTypes []domain.ConversationType `json:"conversation_types"`
	UploadMaxBytes    int64                     `json:"upload_max_bytes"`
}

// SystemHandler handles health and configuration endpoints.
type SystemHandler struct {
	repo   store.Repository
	client ClientConfig
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(repo store.Repository, client ClientConfig) *SystemHandler {
	return &SystemHandler{repo: repo, client: client}
}

// RegisterRoutes registers system routes.
func (h *SystemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/health", h.Health)
}

// GetConfig returns the server configuration for the frontend.
func (h *SystemHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.client)
}

// Health returns the health status of the API and its dependencies.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "database": "ok"}
	status := "healthy"
	code := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
