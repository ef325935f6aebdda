package assessment

// Result is the outcome of a completed quiz.
type Result struct {
	TotalQuestions int    `json:"totalQuestions"`
	CorrectAnswers int    `json:"correctAnswers"`
	Correctness    []bool `json:"correctness"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}

// Score compares answers (question id to option id) with each question's
// correct option. Unanswered questions count as wrong.
func Score(questions []Question, answers map[string]string, elapsedSeconds int) Result {
	r := Result{
		TotalQuestions: len(questions),
		Correctness:    make([]bool, len(questions)),
		ElapsedSeconds: elapsedSeconds,
	}
	for i, q := range questions {
		if answers[q.ID] == q.CorrectOptionID && q.CorrectOptionID != "" {
			r.Correctness[i] = true
			r.CorrectAnswers++
		}
	}
	return r
}
