package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/model"
)

func fixedCompleter(response string, err error) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, prompt, system string) (string, error) {
		return response, err
	})
}

var testConfig = model.ExamConfig{
	Topic:                  "Go concurrency",
	Title:                  "Concurrency Quiz",
	QuestionCount:          3,
	DifficultyDistribution: "1 easy, 1 medium, 1 hard",
	TotalScore:             30,
}

const goodPlan = `{"blueprint": [
	{"index": 0, "type": "single_choice", "difficulty": "easy", "score": 10, "knowledge_point": "goroutines", "design_intent": "recall"},
	{"index": 1, "type": "multiple_choice", "difficulty": "medium", "score": 10, "knowledge_point": "channels", "design_intent": "application"},
	{"index": 2, "type": "subjective", "difficulty": "hard", "score": 10, "knowledge_point": "select", "design_intent": "analysis"}
]}`

func TestPlan(t *testing.T) {
	p := New(fixedCompleter(goodPlan, nil))

	bps, err := p.Plan(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(bps) != 3 {
		t.Fatalf("expected 3 blueprints, got %d", len(bps))
	}
	for i, bp := range bps {
		if bp.Index != i {
			t.Errorf("blueprint %d has index %d", i, bp.Index)
		}
	}
	if bps[1].Type != model.TypeMultipleChoice {
		t.Errorf("blueprint 1 type = %q", bps[1].Type)
	}
}

func TestPlanNormalizesModelIndexes(t *testing.T) {
	// Model numbered from 1 and out of order; position wins.
	plan := `{"blueprint": [
		{"index": 7, "type": "true_false", "difficulty": "easy", "score": 15, "knowledge_point": "a", "design_intent": "b"},
		{"index": 1, "type": "fill_in", "difficulty": "medium", "score": 15, "knowledge_point": "c", "design_intent": "d"}
	]}`
	p := New(fixedCompleter(plan, nil))
	bps, err := p.Plan(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if bps[0].Index != 0 || bps[1].Index != 1 {
		t.Errorf("indexes not normalized: %d, %d", bps[0].Index, bps[1].Index)
	}
}

func TestPlanAcceptsBareArray(t *testing.T) {
	plan := "```json\n[{\"type\": \"single_choice\", \"difficulty\": \"easy\", \"score\": 30, \"knowledge_point\": \"a\", \"design_intent\": \"b\"}]\n```"
	p := New(fixedCompleter(plan, nil))
	bps, err := p.Plan(context.Background(), testConfig)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(bps) != 1 {
		t.Fatalf("expected 1 blueprint, got %d", len(bps))
	}
}

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		callErr  error
	}{
		{"completion call fails", "", fmt.Errorf("connection refused")},
		{"not JSON", "sorry, I cannot plan that exam", nil},
		{"empty blueprint", `{"blueprint": []}`, nil},
		{"unknown type", `{"blueprint": [{"type": "essay", "difficulty": "easy", "score": 30}]}`, nil},
		{"non-positive score", `{"blueprint": [{"type": "fill_in", "difficulty": "easy", "score": 0}]}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(fixedCompleter(tt.response, tt.callErr))
			_, err := p.Plan(context.Background(), testConfig)
			var perr *PlanningError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *PlanningError, got %v", err)
			}
		})
	}
}

func TestCheckScoreSum(t *testing.T) {
	bps := []model.QuestionBlueprint{{Score: 10}, {Score: 10}, {Score: 10}}

	if sum, ok := CheckScoreSum(bps, 30); !ok || sum != 30 {
		t.Errorf("CheckScoreSum = (%g, %v), want (30, true)", sum, ok)
	}
	if sum, ok := CheckScoreSum(bps, 40); ok || sum != 30 {
		t.Errorf("CheckScoreSum = (%g, %v), want (30, false)", sum, ok)
	}
	// Fractional scores must compare without float drift.
	frac := []model.QuestionBlueprint{{Score: 0.1}, {Score: 0.2}}
	if _, ok := CheckScoreSum(frac, 0.3); !ok {
		t.Error("0.1 + 0.2 should satisfy a 0.3 total")
	}
}
