package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/examforge/internal/model"
)

const snapshotKey = "generation_snapshot"

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SaveSnapshot persists the generation progress as a metadata row so a
// restarted process can pick up where the display left off.
func (s *Store) SaveSnapshot(p model.GenerationProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.SetMetadata(snapshotKey, string(data))
}

// LoadSnapshot returns the persisted generation progress, or nil when
// none was ever saved.
func (s *Store) LoadSnapshot() (*model.GenerationProgress, error) {
	value, err := s.GetMetadata(snapshotKey)
	if err != nil || value == "" {
		return nil, err
	}
	var p model.GenerationProgress
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &p, nil
}

// ClearSnapshot removes the persisted generation progress.
func (s *Store) ClearSnapshot() error {
	_, err := s.db.Exec(`DELETE FROM exam_metadata WHERE key = ?`, snapshotKey)
	return err
}
