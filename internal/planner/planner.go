// Package planner turns an exam config into an ordered question blueprint
// via one completion call.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/llm/jsonx"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/model"
)

// PlanningError is fatal to a generation run. There is no retry at this
// level: a bad plan invalidates everything downstream, and redoing the
// whole plan is cheap for the caller.
type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return "planning failed: " + e.Reason
}

func (e *PlanningError) Unwrap() error { return e.Err }

// Planner produces exam blueprints.
type Planner struct {
	llm llm.Completer
}

// New creates a Planner using the given completion service.
func New(c llm.Completer) *Planner {
	return &Planner{llm: c}
}

type planPayload struct {
	Blueprint []model.QuestionBlueprint `json:"blueprint"`
}

// Plan issues exactly one completion call and parses the ordered blueprint
// array. Malformed output returns a *PlanningError. The score-sum
// invariant is NOT enforced here; callers treat a mismatch as a soft
// warning via CheckScoreSum.
func (p *Planner) Plan(ctx context.Context, cfg model.ExamConfig) ([]model.QuestionBlueprint, error) {
	raw, err := p.llm.Complete(ctx, prompts.BuildPlanPrompt(cfg), prompts.PlanSystem())
	if err != nil {
		return nil, &PlanningError{Reason: "completion call", Err: err}
	}

	var payload planPayload
	tier, err := jsonx.Decode(raw, &payload)
	if err != nil {
		// Some models return the bare array despite the requested shape.
		if aerr := jsonx.ParseLenient(raw, &payload.Blueprint); aerr != nil {
			return nil, &PlanningError{Reason: "unparseable blueprint response", Err: err}
		}
	} else if tier != jsonx.TierStrict {
		slog.Debug("blueprint response needed recovery", "tier", tier.String())
	}

	bps := payload.Blueprint
	if len(bps) == 0 {
		return nil, &PlanningError{Reason: "blueprint response contains no questions"}
	}
	for i := range bps {
		bp := &bps[i]
		if !model.ValidType(bp.Type) {
			return nil, &PlanningError{Reason: fmt.Sprintf("question %d has unknown type %q", i, bp.Type)}
		}
		if bp.Score <= 0 {
			return nil, &PlanningError{Reason: fmt.Sprintf("question %d has non-positive score %g", i, bp.Score)}
		}
		// Index values are normalized by position; the model's own
		// numbering is untrusted.
		bp.Index = i
	}
	if len(bps) != cfg.QuestionCount {
		slog.Warn("blueprint question count differs from config",
			"planned", len(bps), "requested", cfg.QuestionCount)
	}
	return bps, nil
}

// CheckScoreSum verifies sum(blueprint scores) == total. A mismatch is a
// soft warning, never a hard failure: the generator has no self-correction
// step for this field.
func CheckScoreSum(bps []model.QuestionBlueprint, total float64) (sum float64, ok bool) {
	for _, bp := range bps {
		sum += bp.Score
	}
	ok = math.Abs(sum-total) < 1e-9
	if !ok {
		slog.Warn("blueprint scores do not sum to configured total",
			"sum", sum, "total", total)
	}
	return sum, ok
}
