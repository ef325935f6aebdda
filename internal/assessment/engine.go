package assessment

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/ashureev/career-advisor/internal/domain"
)

// Phase is the quiz lifecycle state.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Completed
)

func (p Phase) String() string {
	switch p {
	case InProgress:
		return "in-progress"
	case Completed:
		return "completed"
	default:
		return "not-started"
	}
}

// Ticker delivers the one-second clock that drives a running quiz.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Engine runs one quiz: Start, Select and Next driven by the user, Tick
// driven by a clock. It is safe for concurrent use.
type Engine struct {
	questions  []Question
	timeLimit  int
	onComplete func(Result)
	newTicker  func() Ticker

	mu        sync.Mutex
	phase     Phase
	index     int
	answers   map[string]string
	elapsed   int
	remaining int
	result    *Result
}

// NewEngine creates a quiz over questions. timeLimit is in seconds; 0 means
// untimed. onComplete, if set, runs once each time the quiz completes.
func NewEngine(questions []Question, timeLimit int, onComplete func(Result)) *Engine {
	return &Engine{
		questions:  questions,
		timeLimit:  timeLimit,
		onComplete: onComplete,
		newTicker:  func() Ticker { return timeTicker{time.NewTicker(time.Second)} },
		answers:    make(map[string]string),
	}
}

// WithTicker replaces the clock used by Run.
func (e *Engine) WithTicker(newTicker func() Ticker) *Engine {
	e.newTicker = newTicker
	return e
}

// Start moves a not-started quiz into progress.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != NotStarted {
		return fmt.Errorf("%w: quiz is %s", domain.ErrInvalidInput, e.phase)
	}
	if len(e.questions) == 0 {
		return fmt.Errorf("%w: quiz has no questions", domain.ErrInvalidInput)
	}
	e.phase = InProgress
	e.index = 0
	e.elapsed = 0
	e.remaining = e.timeLimit
	return nil
}

// Select records optionID as the answer to questionID, replacing any earlier choice.
func (e *Engine) Select(questionID, optionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != InProgress {
		return fmt.Errorf("%w: quiz is %s", domain.ErrInvalidInput, e.phase)
	}
	q, ok := e.question(questionID)
	if !ok {
		return fmt.Errorf("%w: unknown question %q", domain.ErrInvalidInput, questionID)
	}
	for _, o := range q.Options {
		if o.ID == optionID {
			e.answers[questionID] = optionID
			return nil
		}
	}
	return fmt.Errorf("%w: question %s has no option %q", domain.ErrInvalidInput, questionID, optionID)
}

func (e *Engine) question(id string) (Question, bool) {
	for _, q := range e.questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Next advances to the following question, completing the quiz after the last.
func (e *Engine) Next() {
	e.mu.Lock()
	if e.phase != InProgress {
		e.mu.Unlock()
		return
	}
	if e.index < len(e.questions)-1 {
		e.index++
		e.mu.Unlock()
		return
	}
	r := e.completeLocked()
	e.mu.Unlock()
	e.notify(r)
}

// Tick accounts one elapsed second. A timed quiz completes when no time remains.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.phase != InProgress {
		e.mu.Unlock()
		return
	}
	e.elapsed++
	if e.timeLimit <= 0 {
		e.mu.Unlock()
		return
	}
	e.remaining--
	if e.remaining > 0 {
		e.mu.Unlock()
		return
	}
	e.remaining = 0
	r := e.completeLocked()
	e.mu.Unlock()
	e.notify(r)
}

func (e *Engine) completeLocked() Result {
	e.phase = Completed
	r := Score(e.questions, e.answers, e.elapsed)
	e.result = &r
	return r
}

func (e *Engine) notify(r Result) {
	if e.onComplete != nil {
		e.onComplete(r)
	}
}

// Restart discards all progress and returns to not-started.
func (e *Engine) Restart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = NotStarted
	e.index = 0
	e.answers = make(map[string]string)
	e.elapsed = 0
	e.remaining = 0
	e.result = nil
}

// Run ticks the quiz once per second until it completes or ctx is done.
func (e *Engine) Run(ctx context.Context) {
	t := e.newTicker()
	defer t.Stop()
	for {
		if e.Phase() != InProgress {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			e.Tick()
		}
	}
}

// Result returns the score once the quiz has completed.
func (e *Engine) Result() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return Result{}, false
	}
	return *e.result, true
}

// Phase returns the current lifecycle state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Current returns the question at the current index while in progress.
func (e *Engine) Current() (Question, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != InProgress {
		return Question{}, e.index, false
	}
	return e.questions[e.index], e.index, true
}

// Answers returns a copy of the recorded selections.
func (e *Engine) Answers() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.answers)
}

// Elapsed returns the seconds spent in progress.
func (e *Engine) Elapsed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed
}

// Remaining returns the seconds left, or 0 for an untimed quiz.
func (e *Engine) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Timed reports whether the quiz has a time limit.
func (e *Engine) Timed() bool {
	return e.timeLimit > 0
}

// QuestionCount returns the number of questions.
func (e *Engine) QuestionCount() int {
	return len(e.questions)
}
