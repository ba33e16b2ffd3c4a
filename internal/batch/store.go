package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fengailin/qwen-ocr/internal/home"
)

// ErrTaskNotFound is returned when no record exists for a task id.
var ErrTaskNotFound = errors.New("task not found")

// Store persists task records and per-image content artifacts under
// the home data directory. Record writes are serialized so concurrent
// per-image updates never interleave.
type Store struct {
	home *home.Dir
	mu   sync.Mutex
}

// NewStore creates a task store rooted at the given home directory.
func NewStore(h *home.Dir) *Store {
	return &Store{home: h}
}

// SaveTask writes the task record, creating the task directory on
// first save.
func (s *Store) SaveTask(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.home.EnsureTaskDir(t.ID); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task record: %w", err)
	}
	if err := os.WriteFile(s.home.TaskRecordPath(t.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write task record: %w", err)
	}
	return nil
}

// LoadTask reads the task record for the given id.
func (s *Store) LoadTask(taskID string) (*Task, error) {
	data, err := os.ReadFile(s.home.TaskRecordPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to read task record: %w", err)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse task record: %w", err)
	}
	return &t, nil
}

// SaveContent writes one content artifact for a task.
func (s *Store) SaveContent(taskID, name, content string) error {
	if err := s.home.EnsureTaskDir(taskID); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	if err := os.WriteFile(s.home.ContentArtifactPath(taskID, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write content artifact: %w", err)
	}
	return nil
}

// ReadContent reads one content artifact of a task.
func (s *Store) ReadContent(taskID, name string) (string, error) {
	data, err := os.ReadFile(s.home.ContentArtifactPath(taskID, name))
	if err != nil {
		return "", fmt.Errorf("failed to read content artifact: %w", err)
	}
	return string(data), nil
}
