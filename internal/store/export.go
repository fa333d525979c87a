package store

import (
	"fmt"

	"github.com/pavelanni/examforge/internal/model"
)

// ExportAllSessions builds export-ready results from all stored sessions.
func (s *Store) ExportAllSessions() ([]model.ExamResult, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var results []model.ExamResult
	for _, sess := range sessions {
		full, err := s.GetSession(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", sess.ID, err)
		}

		var questions []model.QuestionResult
		for _, q := range full.Questions {
			questions = append(questions, model.QuestionResult{
				ID:            q.ID,
				Type:          q.Type,
				Content:       q.Content,
				Difficulty:    q.Difficulty,
				Score:         q.Score,
				UserAnswer:    q.UserAnswer,
				IsGraded:      q.IsGraded,
				ObtainedScore: q.ObtainedScore,
				Feedback:      q.Feedback,
			})
		}

		results = append(results, model.ExamResult{
			SessionID:     full.ID,
			Title:         full.Config.Title,
			Topic:         full.Config.Topic,
			Status:        full.Status,
			CreatedAt:     full.CreatedAt,
			UpdatedAt:     full.UpdatedAt,
			ObtainedScore: full.TotalObtained(),
			MaxScore:      full.MaxScore(),
			Questions:     questions,
		})
	}
	return results, nil
}
