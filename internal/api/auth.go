package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/auth"
	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const oauthStateCookie = "advisor_oauth_state"

// AuthHandler handles sign-up, sign-in and sign-out endpoints.
type AuthHandler struct {
	auth        *auth.Service
	frontendURL string
	isDev       bool
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *auth.Service, frontendURL string, isDev bool) *AuthHandler {
	if frontendURL == "" {
		frontendURL = "/"
	}
	return &AuthHandler{auth: svc, frontendURL: frontendURL, isDev: isDev}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/signin", h.SignIn)
		r.Post("/magic-link", h.RequestMagicLink)
		r.Post("/magic-link/verify", h.VerifyMagicLink)
		r.Get("/oauth/{provider}", h.OAuthStart)
		r.Get("/oauth/{provider}/callback", h.OAuthCallback)
		r.Get("/providers", h.Providers)
		r.With(identity.RequireSession).Post("/signout", h.SignOut)
		r.With(identity.RequireSession).Get("/session", h.Session)
	})
	r.Get("/auth/verify", h.VerifyMagicLinkRedirect)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, session *domain.Session) {
	identity.SetSessionCookie(w, session, h.isDev)
	JSON(w, status, session)
}

// SignUp registers a new email/password account.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	session, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		Fail(w, r, err)
		return
	}
	h.startSession(w, http.StatusCreated, session)
}

// SignIn authenticates with email and password.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("Sign-in rejected", "ip", identity.IPFromRequest(r), "error", err)
		Fail(w, r, err)
		return
	}
	h.startSession(w, http.StatusOK, session)
}

// RequestMagicLink mails a one-time sign-in link.
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	if err := h.auth.RequestMagicLink(r.Context(), req.Email); err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyMagicLink exchanges a magic link token for a session.
func (h *AuthHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	session, err := h.auth.CompleteMagicLink(r.Context(), req.Token)
	if err != nil {
		Fail(w, r, err)
		return
	}
	h.startSession(w, http.StatusOK, session)
}

// VerifyMagicLinkRedirect completes a magic link opened in a browser and
// redirects to the frontend.
func (h *AuthHandler) VerifyMagicLinkRedirect(w http.ResponseWriter, r *http.Request) {
	session, err := h.auth.CompleteMagicLink(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		slog.Info("Magic link rejected", "ip", identity.IPFromRequest(r), "error", err)
		http.Redirect(w, r, h.frontendURL+"?auth_error=link_expired", http.StatusSeeOther)
		return
	}
	identity.SetSessionCookie(w, session, h.isDev)
	http.Redirect(w, r, h.frontendURL, http.StatusSeeOther)
}

// Providers lists the configured OAuth providers.
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string][]string{"providers": h.auth.Providers()})
}

// OAuthStart redirects to the provider's consent screen.
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	url, err := h.auth.OAuthStart(chi.URLParam(r, "provider"), state)
	if err != nil {
		Fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/oauth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.isDev,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

// OAuthCallback completes the OAuth flow and redirects to the frontend.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || q.Get("state") == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		Error(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/auth/oauth", MaxAge: -1})

	if e := q.Get("error"); e != "" {
		slog.Info("OAuth consent denied", "provider", provider, "error", e)
		http.Redirect(w, r, h.frontendURL+"?auth_error="+strings.ReplaceAll(e, " ", "_"), http.StatusSeeOther)
		return
	}

	session, err := h.auth.OAuthComplete(r.Context(), provider, q.Get("code"))
	if err != nil {
		slog.Warn("OAuth sign-in failed", "provider", provider, "error", err)
		http.Redirect(w, r, h.frontendURL+"?auth_error=oauth_failed", http.StatusSeeOther)
		return
	}
	identity.SetSessionCookie(w, session, h.isDev)
	http.Redirect(w, r, h.frontendURL, http.StatusSeeOther)
}

// SignOut revokes the current session.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), identity.SessionFromContext(r.Context())); err != nil {
		Fail(w, r, err)
		return
	}
	identity.ClearSessionCookie(w, h.isDev)
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the caller's current session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, identity.SessionFromContext(r.Context()))
}
