package api

import (
	"net/http"

	"github.com/ashureev/career-advisor/internal/assessment"
	"github.com/ashureev/career-advisor/internal/identity"
	"github.com/go-chi/chi/v5"
)

// AssessmentHandler serves the question banks and scores submissions.
type AssessmentHandler struct {
	bank *assessment.Bank
}

// NewAssessmentHandler creates a new assessment handler.
func NewAssessmentHandler(bank *assessment.Bank) *AssessmentHandler {
	return &AssessmentHandler{bank: bank}
}

// RegisterRoutes registers assessment routes.
func (h *AssessmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/assessments", func(r chi.Router) {
		r.Use(identity.RequireSession)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/score", h.Score)
	})
}

// List returns every assessment without its questions.
func (h *AssessmentHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.bank.Catalog())
}

// Get returns an assessment with the correct answers removed.
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.bank.Get(chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, a.Public())
}

type scoreRequest struct {
	Answers        map[string]string `json:"answers"`
	ElapsedSeconds int               `json:"elapsedSeconds"`
}

// Score grades a set of answers against the bank.
func (h *AssessmentHandler) Score(w http.ResponseWriter, r *http.Request) {
	a, err := h.bank.Get(chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	var req scoreRequest
	if err := decode(r, &req); err != nil {
		Fail(w, r, err)
		return
	}
	if req.ElapsedSeconds < 0 {
		req.ElapsedSeconds = 0
	}
	JSON(w, http.StatusOK, assessment.Score(a.Questions, req.Answers, req.ElapsedSeconds))
}
