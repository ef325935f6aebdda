package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/ashureev/career-advisor/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxSkills = 50

// ProfileHandler handles the career profile endpoints.
type ProfileHandler struct {
	repo store.Repository
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(repo store.Repository) *ProfileHandler {
	return &ProfileHandler{repo: repo}
}

// RegisterRoutes registers profile routes.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/profile", func(r chi.Router) {
		r.Use(identity.RequireSession)
		r.Get("/", h.Get)
		r.Put("/", h.Put)
	})
}

// Get returns the caller's profile. A user without one gets an empty profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	profile, err := h.repo.GetProfile(r.Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		JSON(w, http.StatusOK, &domain.Profile{UserID: userID, Skills: []string{}})
		return
	}
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, profile)
}

// Put replaces the caller's profile.
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	var p domain.Profile
	if err := decode(r, &p); err != nil {
		Fail(w, r, err)
		return
	}

	p.UserID = identity.UserIDFromContext(r.Context())
	p.FullName = strings.TrimSpace(p.FullName)
	p.Headline = strings.TrimSpace(p.Headline)
	p.TargetRole = strings.TrimSpace(p.TargetRole)
	p.Location = strings.TrimSpace(p.Location)
	p.Skills = cleanSkills(p.Skills)
	if len(p.Skills) > maxSkills {
		Error(w, http.StatusBadRequest, "too many skills")
		return
	}
	p.UpdatedAt = time.Now()

	if err := h.repo.UpsertProfile(r.Context(), &p); err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, &p)
}

// cleanSkills trims skills and drops blanks and case-insensitive duplicates.
func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
