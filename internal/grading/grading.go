// Package grading scores one answered question against its standard
// answer. Three strategies exist, selected by question type: exact match,
// proportional partial credit, and rubric grading through the completion
// service. The local strategies are pure; only the rubric strategy does
// I/O.
package grading

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/llm/jsonx"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/model"
)

// Result is the outcome of grading one question.
type Result struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// GradeCallError reports that the rubric grading call itself failed. It is
// distinct from a genuine zero score: the question stays ungraded so the
// caller can retry.
type GradeCallError struct {
	QuestionID string
	Err        error
}

func (e *GradeCallError) Error() string {
	return fmt.Sprintf("grading call for question %s: %v", e.QuestionID, e.Err)
}

func (e *GradeCallError) Unwrap() error { return e.Err }

// Engine grades answered questions.
type Engine struct {
	llm     llm.Completer
	variant prompts.Variant
}

// New creates an Engine. The variant tunes the rubric grading prompt only;
// local strategies ignore it.
func New(c llm.Completer, variant prompts.Variant) *Engine {
	return &Engine{llm: c, variant: variant}
}

// Grade scores q's user answer with the strategy matching its type. It is
// safe to call concurrently for distinct questions. Rubric strategy
// failures return *GradeCallError; callers must not treat that as a zero.
func (e *Engine) Grade(ctx context.Context, q model.ExamQuestion) (Result, error) {
	if q.UserAnswer == nil {
		return Result{Feedback: i18n.T(ctx, "grading.not_answered")}, nil
	}
	switch q.Type {
	case model.TypeSingleChoice, model.TypeTrueFalse:
		return gradeExact(ctx, q, *q.UserAnswer), nil
	case model.TypeMultipleChoice:
		return gradeMultiChoice(ctx, q, *q.UserAnswer), nil
	case model.TypeFillIn, model.TypeSubjective:
		return e.gradeRubric(ctx, q, *q.UserAnswer)
	default:
		return Result{}, fmt.Errorf("unsupported question type: %s", q.Type)
	}
}

// gradeExact awards full score iff the trimmed answers match. True/false
// questions accept booleans or the literals "true"/"false" on either side.
func gradeExact(ctx context.Context, q model.ExamQuestion, ans model.Answer) Result {
	want := strings.TrimSpace(q.CorrectAnswer.Norm())
	got := strings.TrimSpace(ans.Norm())
	if q.Type == model.TypeTrueFalse {
		want = strings.ToLower(want)
		got = strings.ToLower(got)
	}
	if got == want {
		return Result{Score: q.Score, Feedback: i18n.T(ctx, "grading.correct")}
	}
	return Result{Score: 0, Feedback: i18n.T(ctx, "grading.incorrect")}
}

// gradeMultiChoice applies proportional partial credit over a normalized
// set comparison. Any wrong pick zeroes the score; a proper subset earns
// credit proportional to the correct fraction, rounded down to the nearest 0.5
// with a 0.5 minimum once at least one correct option was picked.
func gradeMultiChoice(ctx context.Context, q model.ExamQuestion, ans model.Answer) Result {
	correct := q.CorrectAnswer.Set()
	user := ans.Set()

	hits := 0
	for id := range user {
		if !correct[id] {
			return Result{Score: 0, Feedback: i18n.T(ctx, "grading.wrong_option")}
		}
		hits++
	}
	if hits == 0 {
		return Result{Score: 0, Feedback: i18n.T(ctx, "grading.not_answered")}
	}
	if hits == len(correct) {
		return Result{Score: q.Score, Feedback: i18n.T(ctx, "grading.correct")}
	}

	return Result{
		Score:    partialCredit(hits, len(correct), q.Score),
		Feedback: i18n.Td(ctx, "grading.partial", map[string]any{"Count": hits}),
	}
}

// partialCredit computes the subset score: proportional, floored to the
// nearest 0.5, clamped up to 0.5 so a correct pick never scores zero.
func partialCredit(hits, total int, score float64) float64 {
	raw := float64(hits) / float64(total) * score
	floored := math.Floor(raw*2) / 2
	if floored < 0.5 {
		return 0.5
	}
	return floored
}

// gradeRubric delegates to the completion service with the question, the
// standard answer, the grading criteria, and the student's answer.
func (e *Engine) gradeRubric(ctx context.Context, q model.ExamQuestion, ans model.Answer) (Result, error) {
	raw, err := e.llm.Complete(ctx, prompts.BuildGradePrompt(q, ans.Norm()), prompts.GradeSystem(e.variant))
	if err != nil {
		return Result{}, &GradeCallError{QuestionID: q.ID, Err: err}
	}

	var res Result
	if _, err := jsonx.Decode(raw, &res); err != nil {
		return Result{}, &GradeCallError{QuestionID: q.ID, Err: err}
	}
	if res.Score < 0 || res.Score > q.Score {
		return Result{}, &GradeCallError{
			QuestionID: q.ID,
			Err:        fmt.Errorf("score %g outside [0, %g]", res.Score, q.Score),
		}
	}
	return res, nil
}
