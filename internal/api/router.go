package api

import (
	"net/http"

	"github.com/ashureev/career-advisor/internal/advisor"
	"github.com/ashureev/career-advisor/internal/assessment"
	"github.com/ashureev/career-advisor/internal/auth"
	"github.com/ashureev/career-advisor/internal/blob"
	"github.com/ashureev/career-advisor/internal/conversation"
	"github.com/ashureev/career-advisor/internal/exchange"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/ashureev/career-advisor/internal/middleware"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Repo          store.Repository
	Verifier      identity.Verifier
	Auth          *auth.Service
	Conversations *conversation.Service
	Exchange      *exchange.Service
	AI            advisor.Provider
	Bank          *assessment.Bank
	Blobs         *blob.Store

	UploadMaxBytes int64
	FrontendURL    string
	IsDev          bool
	AllowedOrigins []string
	Client         ClientConfig

	// SPA serves every path no API route matches. Optional.
	SPA http.Handler
	// RequestLogging enables chi's request logger.
	RequestLogging bool
}

// NewRouter mounts every handler on a chi router.
func NewRouter(s Services) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if s.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	if len(s.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(s.AllowedOrigins))
	}
	r.Use(identity.Middleware(s.Verifier))

	NewSystemHandler(s.Repo, s.Client).RegisterRoutes(r)
	NewAuthHandler(s.Auth, s.FrontendURL, s.IsDev).RegisterRoutes(r)
	NewConversationHandler(s.Conversations, s.Exchange).RegisterRoutes(r)
	NewProfileHandler(s.Repo).RegisterRoutes(r)
	NewFileHandler(s.Blobs, s.UploadMaxBytes).RegisterRoutes(r)
	NewAIHandler(s.AI, s.Blobs).RegisterRoutes(r)
	NewAssessmentHandler(s.Bank).RegisterRoutes(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusNotFound, "not found")
	})
	if s.SPA != nil {
		r.Handle("/*", s.SPA)
	}
	return r
}
