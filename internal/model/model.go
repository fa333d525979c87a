package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionType represents the kind of exam question.
type QuestionType string

const (
	TypeSingleChoice   QuestionType = "single_choice"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeFillIn         QuestionType = "fill_in"
	TypeTrueFalse      QuestionType = "true_false"
	TypeSubjective     QuestionType = "subjective"
)

// ValidType reports whether t is one of the known question types.
func ValidType(t QuestionType) bool {
	switch t {
	case TypeSingleChoice, TypeMultipleChoice, TypeFillIn, TypeTrueFalse, TypeSubjective:
		return true
	}
	return false
}

// IsChoice reports whether the question type carries an options list.
func (t QuestionType) IsChoice() bool {
	return t == TypeSingleChoice || t == TypeMultipleChoice
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// SessionStatus represents the lifecycle state of an exam session.
type SessionStatus string

const (
	StatusGenerating SessionStatus = "generating"
	StatusReady      SessionStatus = "ready"
	StatusInProgress SessionStatus = "in_progress"
	StatusSubmitted  SessionStatus = "submitted"
	StatusGraded     SessionStatus = "graded"
)

// GenerationPhase represents the state of a generation run.
type GenerationPhase string

const (
	PhaseIdle       GenerationPhase = "idle"
	PhasePlanning   GenerationPhase = "planning"
	PhaseGenerating GenerationPhase = "generating"
	PhaseDone       GenerationPhase = "done"
	PhaseError      GenerationPhase = "error"
)

// ExamConfig is the declarative input for one exam. The engine never
// mutates it.
type ExamConfig struct {
	Topic                  string  `json:"topic"`
	Title                  string  `json:"title"`
	QuestionCount          int     `json:"question_count"`
	DifficultyDistribution string  `json:"difficulty_distribution"`
	TotalScore             float64 `json:"total_score"`
	Requirements           string  `json:"requirements,omitempty"`
}

// QuestionBlueprint is a content-free plan for one question, produced by
// the planner before any question text exists. Index is the stable
// ordering key for the assembled exam.
type QuestionBlueprint struct {
	Index          int          `json:"index"`
	Type           QuestionType `json:"type"`
	Difficulty     Difficulty   `json:"difficulty"`
	Score          float64      `json:"score"`
	KnowledgePoint string       `json:"knowledge_point"`
	DesignIntent   string       `json:"design_intent"`
}

// Answer holds an answer value, which may be a bare string, a boolean, or
// a list of option identifiers depending on the question type. It
// round-trips the native JSON shape the completion service produces.
type Answer struct {
	Text    string   `json:"-"`
	Bool    *bool    `json:"-"`
	Choices []string `json:"-"`
}

// StringAnswer builds a text answer.
func StringAnswer(s string) Answer { return Answer{Text: s} }

// BoolAnswer builds a true/false answer.
func BoolAnswer(b bool) Answer { return Answer{Bool: &b} }

// ChoicesAnswer builds a multi-select answer.
func ChoicesAnswer(ids ...string) Answer { return Answer{Choices: ids} }

// IsEmpty reports whether no answer value is present.
func (a Answer) IsEmpty() bool {
	return a.Bool == nil && len(a.Choices) == 0 && strings.TrimSpace(a.Text) == ""
}

// Norm returns the trimmed text form of the answer. Booleans normalize to
// the literals "true"/"false"; choice lists join their trimmed members
// with commas.
func (a Answer) Norm() string {
	switch {
	case a.Bool != nil:
		if *a.Bool {
			return "true"
		}
		return "false"
	case len(a.Choices) > 0:
		ids := make([]string, 0, len(a.Choices))
		for _, c := range a.Choices {
			ids = append(ids, strings.TrimSpace(c))
		}
		return strings.Join(ids, ",")
	default:
		return strings.TrimSpace(a.Text)
	}
}

// Set returns the answer as a set of trimmed option identifiers. A text
// answer splits on commas so "A,B" and ["A","B"] compare equal.
func (a Answer) Set() map[string]bool {
	set := make(map[string]bool)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = true
		}
	}
	if len(a.Choices) > 0 {
		for _, c := range a.Choices {
			add(c)
		}
		return set
	}
	for _, c := range strings.Split(a.Text, ",") {
		add(c)
	}
	return set
}

// UnmarshalJSON accepts a string, a boolean, or an array of strings.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Answer{Text: s}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*a = Answer{Bool: &b}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = Answer{Choices: list}
		return nil
	}
	return fmt.Errorf("answer: unsupported JSON shape: %s", string(data))
}

// MarshalJSON writes the answer back in its native shape.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch {
	case a.Bool != nil:
		return json.Marshal(*a.Bool)
	case a.Choices != nil:
		return json.Marshal(a.Choices)
	default:
		return json.Marshal(a.Text)
	}
}

// ExamQuestion is one fully generated question. UserAnswer, IsGraded,
// ObtainedScore and Feedback are the only mutable fields; they are written
// exclusively by the exam runner. IsGraded flips to true at most once.
type ExamQuestion struct {
	ID              string       `json:"id"`
	Type            QuestionType `json:"type"`
	Content         string       `json:"content"`
	Options         []string     `json:"options,omitempty"`
	Score           float64      `json:"score"`
	Difficulty      Difficulty   `json:"difficulty"`
	CorrectAnswer   Answer       `json:"correct_answer"`
	GradingCriteria string       `json:"grading_criteria"`
	Analysis        string       `json:"analysis,omitempty"`

	UserAnswer    *Answer  `json:"user_answer,omitempty"`
	IsGraded      bool     `json:"is_graded"`
	ObtainedScore *float64 `json:"obtained_score,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
}

// Answered reports whether the question has a non-empty user answer.
func (q *ExamQuestion) Answered() bool {
	return q.UserAnswer != nil && !q.UserAnswer.IsEmpty()
}

// ExamSession is one live exam: its config, its questions ordered by
// blueprint index, and the aggregate grading state.
type ExamSession struct {
	ID                   string         `json:"id"`
	Config               ExamConfig     `json:"config"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	Status               SessionStatus  `json:"status"`
	Questions            []ExamQuestion `json:"questions"`
	CurrentQuestionIndex int            `json:"current_question_index"`
}

// TotalObtained sums obtained scores over graded questions.
func (s *ExamSession) TotalObtained() float64 {
	var total float64
	for i := range s.Questions {
		q := &s.Questions[i]
		if q.IsGraded && q.ObtainedScore != nil {
			total += *q.ObtainedScore
		}
	}
	return total
}

// MaxScore sums the declared score over all questions.
func (s *ExamSession) MaxScore() float64 {
	var total float64
	for i := range s.Questions {
		total += s.Questions[i].Score
	}
	return total
}

// GenerationProgress is the host-persistable snapshot of a generation run.
// It is the only state that must survive a host unmount/remount.
type GenerationProgress struct {
	Phase         GenerationPhase `json:"phase"`
	Progress      int             `json:"progress"`
	Completed     int             `json:"completed"`
	Total         int             `json:"total"`
	GeneratedExam *ExamSession    `json:"generated_exam,omitempty"`
	Err           string          `json:"error,omitempty"`
}
