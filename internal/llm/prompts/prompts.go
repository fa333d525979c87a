// Package prompts builds the completion-service prompts for planning,
// question generation, and rubric grading.
package prompts

import (
	"fmt"
	"strings"

	"github.com/pavelanni/examforge/internal/model"
)

// Variant selects how demanding the rubric grading prompt is.
type Variant string

const (
	// VariantStrict grades hard, for core subjects.
	VariantStrict Variant = "strict"
	// VariantStandard is the default grading variant.
	VariantStandard Variant = "standard"
	// VariantLenient grades generously, for electives.
	VariantLenient Variant = "lenient"
)

var validVariants = map[Variant]bool{
	VariantStrict:   true,
	VariantStandard: true,
	VariantLenient:  true,
}

// IsValidVariant checks if a grading variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// PlanSystem is the system instruction for the blueprint planning call.
func PlanSystem() string {
	return "You are an exam designer. You produce structured exam blueprints as pure JSON with no surrounding text."
}

// BuildPlanPrompt embeds every ExamConfig field and the required output
// shape for the single blueprint planning call.
func BuildPlanPrompt(cfg model.ExamConfig) string {
	var sb strings.Builder
	sb.WriteString("Design a blueprint for the following exam:\n\n")
	sb.WriteString("TOPIC: " + cfg.Topic + "\n")
	sb.WriteString("TITLE: " + cfg.Title + "\n")
	fmt.Fprintf(&sb, "QUESTION COUNT: %d\n", cfg.QuestionCount)
	sb.WriteString("DIFFICULTY DISTRIBUTION: " + cfg.DifficultyDistribution + "\n")
	fmt.Fprintf(&sb, "TOTAL SCORE: %g\n", cfg.TotalScore)
	if cfg.Requirements != "" {
		sb.WriteString("ADDITIONAL REQUIREMENTS: " + cfg.Requirements + "\n")
	}

	sb.WriteString("\nINSTRUCTIONS:\n")
	fmt.Fprintf(&sb, "- Plan exactly %d questions.\n", cfg.QuestionCount)
	fmt.Fprintf(&sb, "- The scores of all questions MUST sum to %g.\n", cfg.TotalScore)
	sb.WriteString("- Allowed types: single_choice, multiple_choice, fill_in, true_false, subjective.\n")
	sb.WriteString("- Allowed difficulties: easy, medium, hard.\n")
	sb.WriteString("- Order questions in a sensible narrative and difficulty progression.\n")
	sb.WriteString("\nRespond ONLY with a JSON object of this exact shape:\n")
	sb.WriteString(`{"blueprint": [{"index": 0, "type": "<type>", "difficulty": "<difficulty>", "score": <number>, "knowledge_point": "<topic facet>", "design_intent": "<what this question probes>"}]}`)
	sb.WriteString("\n")
	return sb.String()
}

// QuestionSystem is the system instruction for question generation calls.
func QuestionSystem() string {
	return "You are an exam author. You write one complete exam question as pure JSON with no surrounding text."
}

// BuildQuestionPrompt describes one blueprint entry and the required
// question shape for its type.
func BuildQuestionPrompt(bp model.QuestionBlueprint, cfg model.ExamConfig) string {
	var sb strings.Builder
	sb.WriteString("Write one exam question for the exam \"" + cfg.Title + "\" on the topic \"" + cfg.Topic + "\".\n\n")
	sb.WriteString("TYPE: " + string(bp.Type) + "\n")
	sb.WriteString("DIFFICULTY: " + string(bp.Difficulty) + "\n")
	fmt.Fprintf(&sb, "SCORE: %g\n", bp.Score)
	sb.WriteString("KNOWLEDGE POINT: " + bp.KnowledgePoint + "\n")
	sb.WriteString("DESIGN INTENT: " + bp.DesignIntent + "\n")
	if cfg.Requirements != "" {
		sb.WriteString("EXAM REQUIREMENTS: " + cfg.Requirements + "\n")
	}

	sb.WriteString("\nINSTRUCTIONS:\n")
	switch bp.Type {
	case model.TypeSingleChoice:
		sb.WriteString("- Provide exactly 4 options labeled \"A) ...\" through \"D) ...\".\n")
		sb.WriteString("- correct_answer is the single correct option letter, e.g. \"B\".\n")
	case model.TypeMultipleChoice:
		sb.WriteString("- Provide exactly 4 options labeled \"A) ...\" through \"D) ...\".\n")
		sb.WriteString("- correct_answer is the array of correct option letters, e.g. [\"A\", \"C\"]. At least two must be correct.\n")
	case model.TypeTrueFalse:
		sb.WriteString("- content is a statement to judge; correct_answer is the boolean true or false.\n")
	case model.TypeFillIn:
		sb.WriteString("- content contains one blank marked ____; correct_answer is the expected text.\n")
	case model.TypeSubjective:
		sb.WriteString("- content is an open question; correct_answer is a model answer.\n")
	}
	sb.WriteString("- grading_criteria states how partial credit should be awarded.\n")
	sb.WriteString("- analysis briefly explains the correct answer.\n")
	sb.WriteString("\nRespond ONLY with a JSON object of this exact shape:\n")
	if bp.Type.IsChoice() {
		sb.WriteString(`{"content": "<question text>", "options": ["A) ...", "B) ...", "C) ...", "D) ..."], "correct_answer": <answer>, "grading_criteria": "<criteria>", "analysis": "<explanation>"}`)
	} else {
		sb.WriteString(`{"content": "<question text>", "correct_answer": <answer>, "grading_criteria": "<criteria>", "analysis": "<explanation>"}`)
	}
	sb.WriteString("\n")
	return sb.String()
}

// GradeSystem is the system instruction for rubric grading calls.
func GradeSystem(variant Variant) string {
	base := "You are an exam grader. You grade one student answer against a standard answer and respond as pure JSON with no surrounding text."
	switch variant {
	case VariantStrict:
		return base + " Grade strictly: award points only for precise, complete answers."
	case VariantLenient:
		return base + " Grade generously: award points for any demonstrated understanding."
	default:
		return base
	}
}

// BuildGradePrompt builds the rubric grading prompt for a fill-in or
// subjective question. The caller provides the student's answer text.
func BuildGradePrompt(q model.ExamQuestion, userAnswer string) string {
	var sb strings.Builder
	sb.WriteString("Grade the student's answer to the following question.\n\n")
	sb.WriteString("QUESTION: " + q.Content + "\n\n")
	fmt.Fprintf(&sb, "MAX SCORE: %g\n\n", q.Score)
	sb.WriteString("STANDARD ANSWER:\n" + q.CorrectAnswer.Norm() + "\n\n")
	if q.GradingCriteria != "" {
		sb.WriteString("GRADING CRITERIA:\n" + q.GradingCriteria + "\n\n")
	}
	sb.WriteString("STUDENT ANSWER:\n" + sanitizeAnswer(userAnswer) + "\n\n")
	sb.WriteString("INSTRUCTIONS:\n")
	fmt.Fprintf(&sb, "- score must be a number between 0 and %g inclusive.\n", q.Score)
	sb.WriteString("- feedback is brief and addressed to the student.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"score": <number>, "feedback": "<brief feedback>"}`)
	sb.WriteString("\n")
	return sb.String()
}

const maxAnswerRunes = 10000

func sanitizeAnswer(answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "[No answer provided]"
	}
	runes := []rune(answer)
	if len(runes) > maxAnswerRunes {
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
