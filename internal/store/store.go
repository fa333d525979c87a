// Package store persists exam sessions and generation snapshots in
// SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/examforge/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exam_sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ready',
		current_question INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		score REAL NOT NULL,
		difficulty TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		grading_criteria TEXT NOT NULL DEFAULT '',
		analysis TEXT NOT NULL DEFAULT '',
		user_answer TEXT,
		is_graded INTEGER NOT NULL DEFAULT 0,
		obtained_score REAL,
		feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_questions_session_position
		ON exam_questions(session_id, position);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession upserts a whole session with its questions in one
// transaction. Questions are replaced wholesale; positions come from the
// slice order.
func (s *Store) SaveSession(sess *model.ExamSession) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO exam_sessions (id, title, topic, config, status, current_question, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status,
		     current_question = excluded.current_question, updated_at = excluded.updated_at`,
		sess.ID, sess.Config.Title, sess.Config.Topic, string(cfg), sess.Status,
		sess.CurrentQuestionIndex, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM exam_questions WHERE session_id = ?`, sess.ID); err != nil {
		return err
	}
	for i := range sess.Questions {
		q := &sess.Questions[i]
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		correct, err := json.Marshal(q.CorrectAnswer)
		if err != nil {
			return fmt.Errorf("marshal correct answer: %w", err)
		}
		var userAnswer any
		if q.UserAnswer != nil {
			data, err := json.Marshal(q.UserAnswer)
			if err != nil {
				return fmt.Errorf("marshal user answer: %w", err)
			}
			userAnswer = string(data)
		}
		_, err = tx.Exec(
			`INSERT INTO exam_questions
			 (id, session_id, position, type, content, options, score, difficulty,
			  correct_answer, grading_criteria, analysis, user_answer, is_graded, obtained_score, feedback)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, sess.ID, i, q.Type, q.Content, string(options), q.Score, q.Difficulty,
			string(correct), q.GradingCriteria, q.Analysis, userAnswer, q.IsGraded, q.ObtainedScore, q.Feedback,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ErrNotFound reports a missing session.
var ErrNotFound = errors.New("session not found")

// GetSession returns a session with its questions ordered by position.
func (s *Store) GetSession(id string) (*model.ExamSession, error) {
	var sess model.ExamSession
	var cfg string
	err := s.db.QueryRow(
		`SELECT id, config, status, current_question, created_at, updated_at FROM exam_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &cfg, &sess.Status, &sess.CurrentQuestionIndex, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &sess.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	sess.Questions, err = s.questionsForSession(id)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) questionsForSession(sessionID string) ([]model.ExamQuestion, error) {
	rows, err := s.db.Query(
		`SELECT id, type, content, options, score, difficulty, correct_answer,
		        grading_criteria, analysis, user_answer, is_graded, obtained_score, feedback
		 FROM exam_questions WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.ExamQuestion
	for rows.Next() {
		var q model.ExamQuestion
		var options, correct string
		var userAnswer sql.NullString
		if err := rows.Scan(&q.ID, &q.Type, &q.Content, &options, &q.Score, &q.Difficulty, &correct,
			&q.GradingCriteria, &q.Analysis, &userAnswer, &q.IsGraded, &q.ObtainedScore, &q.Feedback); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		if err := json.Unmarshal([]byte(correct), &q.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("unmarshal correct answer: %w", err)
		}
		if userAnswer.Valid {
			var a model.Answer
			if err := json.Unmarshal([]byte(userAnswer.String), &a); err != nil {
				return nil, fmt.Errorf("unmarshal user answer: %w", err)
			}
			q.UserAnswer = &a
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListSessions returns all sessions, newest first, without questions.
func (s *Store) ListSessions() ([]model.ExamSession, error) {
	rows, err := s.db.Query(
		`SELECT id, config, status, current_question, created_at, updated_at FROM exam_sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		var sess model.ExamSession
		var cfg string
		if err := rows.Scan(&sess.ID, &cfg, &sess.Status, &sess.CurrentQuestionIndex, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cfg), &sess.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and its questions.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM exam_questions WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM exam_sessions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
