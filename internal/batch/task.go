package batch

import "time"

// Task statuses. A task moves pending -> processing -> completed, or
// to failed when the archive itself cannot be processed. Individual
// image failures never fail the task.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ResultEntry records one successfully recognized image.
type ResultEntry struct {
	Filename    string    `json:"filename"`
	ContentFile string    `json:"content_file"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorEntry records one image that could not be processed.
type ErrorEntry struct {
	Filename  string    `json:"filename"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the persisted record of one batch OCR run.
type Task struct {
	ID              string        `json:"id"`
	Filename        string        `json:"filename,omitempty"`
	Status          string        `json:"status"`
	TotalImages     int           `json:"total_images"`
	ProcessedImages int           `json:"processed_images"`
	Results         []ResultEntry `json:"results"`
	Errors          []ErrorEntry  `json:"errors"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at"`
}

// clone returns a deep copy safe to persist while workers keep
// mutating the original.
func (t *Task) clone() *Task {
	out := *t
	out.Results = make([]ResultEntry, len(t.Results))
	copy(out.Results, t.Results)
	out.Errors = make([]ErrorEntry, len(t.Errors))
	copy(out.Errors, t.Errors)
	return &out
}
