// Package generator turns one question blueprint into one fully fleshed
// exam question via the completion service. Generation never fails to the
// caller: exhausted retries degrade to a placeholder question so that one
// bad generation cannot abort the exam.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/llm/jsonx"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/model"
)

const (
	// DefaultAttempts is one initial try plus two retries.
	DefaultAttempts = 3
	// DefaultPause is the fixed delay between attempts.
	DefaultPause = time.Second
)

// Generator produces exam questions from blueprints.
type Generator struct {
	llm      llm.Completer
	attempts int
	pause    time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithAttempts overrides the total attempt budget per question.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithPause overrides the fixed delay between attempts.
func WithPause(d time.Duration) Option {
	return func(g *Generator) { g.pause = d }
}

// New creates a Generator using the given completion service.
func New(c llm.Completer, opts ...Option) *Generator {
	g := &Generator{llm: c, attempts: DefaultAttempts, pause: DefaultPause}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type questionPayload struct {
	Content         string       `json:"content"`
	Options         []string     `json:"options"`
	CorrectAnswer   model.Answer `json:"correct_answer"`
	GradingCriteria string       `json:"grading_criteria"`
	Analysis        string       `json:"analysis"`
}

// Generate produces the question for one blueprint entry. It never returns
// an error: after the attempt budget is exhausted it synthesizes a
// placeholder question carrying the blueprint's score and difficulty.
func (g *Generator) Generate(ctx context.Context, bp model.QuestionBlueprint, cfg model.ExamConfig) model.ExamQuestion {
	return retryWithFallback(ctx, g.attempts, g.pause,
		func() (model.ExamQuestion, error) { return g.generateOnce(ctx, bp, cfg) },
		func(err error) model.ExamQuestion { return Placeholder(ctx, bp, err) },
	)
}

func (g *Generator) generateOnce(ctx context.Context, bp model.QuestionBlueprint, cfg model.ExamConfig) (model.ExamQuestion, error) {
	raw, err := g.llm.Complete(ctx, prompts.BuildQuestionPrompt(bp, cfg), prompts.QuestionSystem())
	if err != nil {
		return model.ExamQuestion{}, fmt.Errorf("question %d: %w", bp.Index, err)
	}

	var payload questionPayload
	if _, err := jsonx.Decode(raw, &payload); err != nil {
		return model.ExamQuestion{}, fmt.Errorf("question %d: %w", bp.Index, err)
	}
	if err := validatePayload(bp.Type, payload); err != nil {
		return model.ExamQuestion{}, fmt.Errorf("question %d: %w", bp.Index, err)
	}

	q := model.ExamQuestion{
		ID:              uuid.NewString(),
		Type:            bp.Type,
		Content:         payload.Content,
		Score:           bp.Score,
		Difficulty:      bp.Difficulty,
		CorrectAnswer:   payload.CorrectAnswer,
		GradingCriteria: payload.GradingCriteria,
		Analysis:        payload.Analysis,
	}
	if bp.Type.IsChoice() {
		q.Options = payload.Options
	}
	return q, nil
}

// validatePayload checks the response shape against the blueprint type.
// Schema mismatches count as failed attempts, same as network errors.
func validatePayload(t model.QuestionType, p questionPayload) error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("empty content")
	}
	if t.IsChoice() && len(p.Options) < 2 {
		return fmt.Errorf("choice question has %d options", len(p.Options))
	}
	switch t {
	case model.TypeMultipleChoice:
		if len(p.CorrectAnswer.Choices) == 0 {
			return fmt.Errorf("multiple_choice answer is not a list")
		}
	case model.TypeTrueFalse:
		if p.CorrectAnswer.Bool == nil {
			norm := p.CorrectAnswer.Norm()
			if norm != "true" && norm != "false" {
				return fmt.Errorf("true_false answer %q is not boolean", norm)
			}
		}
	default:
		if p.CorrectAnswer.IsEmpty() {
			return fmt.Errorf("empty correct answer")
		}
	}
	return nil
}

// Placeholder synthesizes the degraded question used when generation
// exhausts its attempts. It preserves the exam structure: the blueprint's
// position, score, and difficulty survive, and the failure is flagged in
// the content instead of aborting siblings.
func Placeholder(ctx context.Context, bp model.QuestionBlueprint, cause error) model.ExamQuestion {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return model.ExamQuestion{
		ID:   fmt.Sprintf("err-%d", bp.Index),
		Type: bp.Type,
		Content: i18n.Td(ctx, "question.generation_failed", map[string]any{
			"KnowledgePoint": bp.KnowledgePoint,
			"Detail":         detail,
		}),
		Score:           bp.Score,
		Difficulty:      bp.Difficulty,
		CorrectAnswer:   model.StringAnswer(""),
		GradingCriteria: "",
	}
}
