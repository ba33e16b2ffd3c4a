package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the qwen-ocr home directory.
	DefaultDirName = ".qwen-ocr"

	// TasksDirName is the subdirectory holding batch task data.
	TasksDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// AccountsFileName is the default accounts file name.
	AccountsFileName = "accounts.yaml"

	// TaskRecordFileName is the per-task JSON record file.
	TaskRecordFileName = "task.json"
)

// Dir represents the qwen-ocr home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.qwen-ocr).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// TasksPath returns the path to the batch task data directory.
func (d *Dir) TasksPath() string {
	return filepath.Join(d.path, TasksDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// AccountsPath returns the path to the accounts file.
func (d *Dir) AccountsPath() string {
	return filepath.Join(d.path, AccountsFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.TasksPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// TaskDir returns the directory holding one batch task's record and artifacts.
func (d *Dir) TaskDir(taskID string) string {
	return filepath.Join(d.TasksPath(), taskID)
}

// TaskRecordPath returns the path to a task's JSON record.
func (d *Dir) TaskRecordPath(taskID string) string {
	return filepath.Join(d.TaskDir(taskID), TaskRecordFileName)
}

// ContentArtifactName returns the artifact file name for a sequence index.
// Indexes are zero-padded so filename order matches natural image order.
func ContentArtifactName(index int) string {
	return fmt.Sprintf("%04d.txt", index)
}

// ContentArtifactPath returns the path to one content artifact of a task.
func (d *Dir) ContentArtifactPath(taskID, name string) string {
	return filepath.Join(d.TaskDir(taskID), name)
}

// EnsureTaskDir creates the directory for a batch task.
func (d *Dir) EnsureTaskDir(taskID string) error {
	return os.MkdirAll(d.TaskDir(taskID), 0o755)
}
