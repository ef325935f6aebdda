// Package assessment provides skill quizzes: question banks, scoring and the
// timed quiz state machine.
package assessment

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/ashureev/career-advisor/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed banks/*.yaml
var embeddedBanks embed.FS

// Option is one answer choice.
type Option struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// Question is a multiple-choice question.
type Question struct {
	ID              string   `yaml:"id" json:"id"`
	Prompt          string   `yaml:"prompt" json:"prompt"`
	Options         []Option `yaml:"options" json:"options"`
	CorrectOptionID string   `yaml:"correct" json:"correctOptionId,omitempty"`
}

// Assessment is a titled set of questions with an optional time limit in
// seconds; 0 means untimed.
type Assessment struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Category    string     `yaml:"category" json:"category"`
	Description string     `yaml:"description" json:"description"`
	TimeLimit   int        `yaml:"time_limit" json:"timeLimit"`
	Questions   []Question `yaml:"questions" json:"questions"`
}

// Summary describes an assessment without its questions.
type Summary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	Description   string `json:"description"`
	TimeLimit     int    `json:"timeLimit"`
	QuestionCount int    `json:"questionCount"`
}

// Public returns a copy with the correct answers removed.
func (a *Assessment) Public() *Assessment {
	out := *a
	out.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		q.CorrectOptionID = ""
		out.Questions[i] = q
	}
	return &out
}

func (a *Assessment) validate() error {
	if a.ID == "" || a.Title == "" {
		return fmt.Errorf("assessment needs an id and a title")
	}
	if a.TimeLimit < 0 {
		return fmt.Errorf("assessment %s: negative time limit", a.ID)
	}
	if len(a.Questions) == 0 {
		return fmt.Errorf("assessment %s: no questions", a.ID)
	}
	seen := make(map[string]bool, len(a.Questions))
	for _, q := range a.Questions {
		if q.ID == "" || seen[q.ID] {
			return fmt.Errorf("assessment %s: missing or duplicate question id %q", a.ID, q.ID)
		}
		seen[q.ID] = true
		found := false
		for _, o := range q.Options {
			if o.ID == q.CorrectOptionID {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("assessment %s: question %s has no option %q", a.ID, q.ID, q.CorrectOptionID)
		}
	}
	return nil
}

// Bank is a read-only collection of assessments.
type Bank struct {
	byID  map[string]*Assessment
	order []string
}

// LoadBank parses every *.yaml file at the root of fsys.
func LoadBank(fsys fs.FS) (*Bank, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list assessment files: %w", err)
	}

	b := &Bank{byID: make(map[string]*Assessment, len(names))}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var a Assessment
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path.Base(name), err)
		}
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := b.byID[a.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate assessment id %q", name, a.ID)
		}
		b.byID[a.ID] = &a
		b.order = append(b.order, a.ID)
	}
	sort.Strings(b.order)
	return b, nil
}

// DefaultBank loads the assessments compiled into the binary.
func DefaultBank() (*Bank, error) {
	sub, err := fs.Sub(embeddedBanks, "banks")
	if err != nil {
		return nil, err
	}
	return LoadBank(sub)
}

// Catalog lists all assessments ordered by id.
func (b *Bank) Catalog() []Summary {
	out := make([]Summary, 0, len(b.order))
	for _, id := range b.order {
		a := b.byID[id]
		out = append(out, Summary{
			ID:            a.ID,
			Title:         a.Title,
			Category:      a.Category,
			Description:   a.Description,
			TimeLimit:     a.TimeLimit,
			QuestionCount: len(a.Questions),
		})
	}
	return out
}

// Get returns the assessment with id, including correct answers.
func (b *Bank) Get(id string) (*Assessment, error) {
	a, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}
