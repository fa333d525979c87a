package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID        string       `json:"exam_id"`
	Subject       string       `json:"subject"`
	Date          string       `json:"date"`
	PromptVariant string       `json:"prompt_variant"`
	Sessions      []ExamResult `json:"sessions"`
}

// ExamResult holds one exam session's outcome for export.
type ExamResult struct {
	SessionID     string           `json:"session_id"`
	Title         string           `json:"title"`
	Topic         string           `json:"topic"`
	Status        SessionStatus    `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	ObtainedScore float64          `json:"obtained_score"`
	MaxScore      float64          `json:"max_score"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Content       string       `json:"content"`
	Difficulty    Difficulty   `json:"difficulty"`
	Score         float64      `json:"score"`
	UserAnswer    *Answer      `json:"user_answer,omitempty"`
	IsGraded      bool         `json:"is_graded"`
	ObtainedScore *float64     `json:"obtained_score,omitempty"`
	Feedback      string       `json:"feedback,omitempty"`
}
