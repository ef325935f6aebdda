package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ashureev/career-advisor/internal/assessment"
	"github.com/spf13/cobra"
)

func (a *app) quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz [assessment-id]",
		Short: "Take a skill assessment; without an id, list them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if len(args) == 0 {
				return a.listAssessments(cmd)
			}
			return a.runQuiz(cmd, args[0])
		},
	}
	return cmd
}

func (a *app) listAssessments(cmd *cobra.Command) error {
	catalog, err := a.client.Assessments(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tQUESTIONS\tTIME LIMIT")
	for _, s := range catalog {
		limit := "none"
		if s.TimeLimit > 0 {
			limit = fmt.Sprintf("%ds", s.TimeLimit)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.QuestionCount, limit)
	}
	return tw.Flush()
}

// readLines delivers input lines until in is exhausted or ctx ends.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// optionFor accepts an option id or its 1-based position.
func optionFor(q assessment.Question, input string) (string, bool) {
	for _, o := range q.Options {
		if strings.EqualFold(o.ID, input) {
			return o.ID, true
		}
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1].ID, true
	}
	return "", false
}

// runQuiz drives a quiz locally and scores it on the server. Public questions
// carry no correct options, so the local engine only tracks answers, progress
// and the countdown. Its Result is never shown; completion only ends the loop.
func (a *app) runQuiz(cmd *cobra.Command, id string) error {
	out := cmd.OutOrStdout()
	quiz, err := a.client.Assessment(cmd.Context(), id)
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	engine := assessment.NewEngine(quiz.Questions, quiz.TimeLimit, func(assessment.Result) {
		close(finished)
	})
	if err := engine.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go engine.Run(ctx)
	lines := readLines(ctx, cmd.InOrStdin())

	fmt.Fprintf(out, "%s: %d questions", quiz.Title, engine.QuestionCount())
	if engine.Timed() {
		fmt.Fprintf(out, ", %d seconds", quiz.TimeLimit)
	}
	fmt.Fprintln(out)

loop:
	for {
		q, index, ok := engine.Current()
		if !ok {
			break
		}
		fmt.Fprintf(out, "\n%d/%d. %s\n", index+1, engine.QuestionCount(), q.Prompt)
		for i, o := range q.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, o.Text)
		}
		if engine.Timed() {
			fmt.Fprintf(out, "(%ds left) ", engine.Remaining())
		}
		fmt.Fprint(out, "answer: ")

		select {
		case <-finished:
			fmt.Fprintln(out, "\nTime is up.")
			break loop
		case <-ctx.Done():
			return ctx.Err()
		case line, open := <-lines:
			if !open {
				return errors.New("quiz abandoned: input ended before the last question")
			}
			optionID, ok := optionFor(q, line)
			if !ok {
				fmt.Fprintln(out, "Pick one of the listed options.")
				continue
			}
			if err := engine.Select(q.ID, optionID); err != nil {
				// The timer may have completed the quiz meanwhile.
				break loop
			}
			engine.Next()
		}
	}

	result, err := a.client.Score(cmd.Context(), quiz.ID, engine.Answers(), engine.Elapsed())
	if err != nil {
		return err
	}
	printResult(out, quiz, result)
	return nil
}

func printResult(w io.Writer, quiz *assessment.Assessment, r *assessment.Result) {
	fmt.Fprintf(w, "\nScore: %d/%d in %ds\n", r.CorrectAnswers, r.TotalQuestions, r.ElapsedSeconds)
	for i, ok := range r.Correctness {
		mark := "✗"
		if ok {
			mark = "✓"
		}
		if i < len(quiz.Questions) {
			fmt.Fprintf(w, "  %s %s\n", mark, quiz.Questions[i].Prompt)
		}
	}
}
