// Package batch fans the recognition pipeline out over archives of
// images with bounded concurrency and a persisted task record.
package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fengailin/qwen-ocr/internal/accounts"
	"github.com/fengailin/qwen-ocr/internal/home"
	"github.com/fengailin/qwen-ocr/internal/ocr"
	"github.com/fengailin/qwen-ocr/internal/qwen"
)

// ErrTaskNotCompleted is returned when combined content is requested
// before the task finished.
var ErrTaskNotCompleted = errors.New("task is not completed yet")

// ErrNoAccounts is returned when no enabled account is available to
// process a batch image.
var ErrNoAccounts = errors.New("no enabled accounts configured")

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Recognizer is the slice of the OCR service the orchestrator drives.
type Recognizer interface {
	UploadImage(ctx context.Context, cookie, filename string, data []byte) (*qwen.FileInfo, error)
	RecognizeFile(ctx context.Context, cookie string, file *qwen.FileInfo, prompt string) (*ocr.Result, error)
}

// Config holds the orchestrator collaborators and concurrency limits.
type Config struct {
	Home                 *home.Dir
	Accounts             *accounts.Store
	Recognizer           Recognizer
	UploadConcurrency    int
	RecognizeConcurrency int
	Logger               *slog.Logger
}

// Orchestrator processes ZIP archives of images: extract, order
// naturally, upload and recognize under two independent concurrency
// bounds, and persist per-image progress as it happens.
type Orchestrator struct {
	store      *Store
	accounts   *accounts.Store
	recognizer Recognizer
	uploads    int64
	recognizes int64
	logger     *slog.Logger

	mu sync.Mutex // guards in-flight task records
}

// New creates a batch orchestrator. Non-positive concurrency limits
// default to 10.
func New(cfg Config) *Orchestrator {
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 10
	}
	if cfg.RecognizeConcurrency <= 0 {
		cfg.RecognizeConcurrency = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		store:      NewStore(cfg.Home),
		accounts:   cfg.Accounts,
		recognizer: cfg.Recognizer,
		uploads:    int64(cfg.UploadConcurrency),
		recognizes: int64(cfg.RecognizeConcurrency),
		logger:     cfg.Logger,
	}
}

// Submit records a pending task and schedules processing in the
// background, returning the task id immediately.
func (o *Orchestrator) Submit(ctx context.Context, filename string, archive []byte) (string, error) {
	task := &Task{
		ID:        uuid.NewString(),
		Filename:  filename,
		Status:    StatusPending,
		Results:   []ResultEntry{},
		Errors:    []ErrorEntry{},
		CreatedAt: time.Now(),
	}
	if err := o.store.SaveTask(task); err != nil {
		return "", err
	}

	go o.process(context.WithoutCancel(ctx), task, archive)
	return task.ID, nil
}

// Status returns the current task record.
func (o *Orchestrator) Status(taskID string) (*Task, error) {
	return o.store.LoadTask(taskID)
}

// Content concatenates the task's content artifacts in filename order,
// joined by a blank line. Artifacts that fail to read are skipped.
func (o *Orchestrator) Content(taskID string) (string, error) {
	task, err := o.store.LoadTask(taskID)
	if err != nil {
		return "", err
	}
	if task.Status != StatusCompleted {
		return "", ErrTaskNotCompleted
	}

	results := make([]ResultEntry, len(task.Results))
	copy(results, task.Results)
	sort.Slice(results, func(i, j int) bool {
		return results[i].ContentFile < results[j].ContentFile
	})

	var parts []string
	for _, r := range results {
		content, err := o.store.ReadContent(taskID, r.ContentFile)
		if err != nil {
			o.logger.Warn("skipping unreadable content artifact", "task_id", taskID, "artifact", r.ContentFile, "error", err)
			continue
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n"), nil
}

// cookie picks a random enabled account and returns its cookie merged
// with the shared common fields.
func (o *Orchestrator) cookie() (string, error) {
	enabled := o.accounts.EnabledAccounts()
	if len(enabled) == 0 {
		return "", ErrNoAccounts
	}
	acct := enabled[rand.Intn(len(enabled))]
	return o.accounts.MergedCookie(acct.Cookie), nil
}

// process runs the whole batch. Archive-level failures mark the task
// failed; per-image failures are recorded and processing continues.
func (o *Orchestrator) process(ctx context.Context, task *Task, archive []byte) {
	o.updateTask(task, func(t *Task) {
		t.Status = StatusProcessing
	})

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		o.fail(task, fmt.Errorf("invalid ZIP archive: %w", err))
		return
	}

	var images []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(path.Ext(f.Name))] {
			images = append(images, f)
		}
	}
	sort.Slice(images, func(i, j int) bool {
		return naturalLess(images[i].Name, images[j].Name)
	})

	o.updateTask(task, func(t *Task) {
		t.TotalImages = len(images)
	})
	if len(images) == 0 {
		o.fail(task, errors.New("no image files found in archive"))
		return
	}

	uploadSem := semaphore.NewWeighted(o.uploads)
	recognizeSem := semaphore.NewWeighted(o.recognizes)

	var g errgroup.Group
	for i, img := range images {
		g.Go(func() error {
			o.processImage(ctx, task, img, i, uploadSem, recognizeSem)
			return nil
		})
	}
	g.Wait()

	now := time.Now()
	o.updateTask(task, func(t *Task) {
		t.Status = StatusCompleted
		t.CompletedAt = &now
	})
	o.logger.Info("batch task completed", "task_id", task.ID, "total", task.TotalImages, "processed", task.ProcessedImages, "errors", len(task.Errors))
}

// processImage uploads and recognizes one archive entry, persisting
// the outcome immediately. The artifact name derives from the entry's
// position in natural-sorted order, not from completion order.
func (o *Orchestrator) processImage(ctx context.Context, task *Task, img *zip.File, index int, uploadSem, recognizeSem *semaphore.Weighted) {
	err := func() error {
		if err := uploadSem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer uploadSem.Release(1)

		rc, err := img.Open()
		if err != nil {
			return fmt.Errorf("failed to open archive entry: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to read archive entry: %w", err)
		}

		cookie, err := o.cookie()
		if err != nil {
			return err
		}

		info, err := o.recognizer.UploadImage(ctx, cookie, path.Base(img.Name), data)
		if err != nil {
			return err
		}

		if err := recognizeSem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer recognizeSem.Release(1)

		res, err := o.recognizer.RecognizeFile(ctx, cookie, info, "")
		if err != nil {
			return err
		}

		artifact := home.ContentArtifactName(index)
		if err := o.store.SaveContent(task.ID, artifact, res.Result); err != nil {
			return err
		}

		o.updateTask(task, func(t *Task) {
			t.Results = append(t.Results, ResultEntry{
				Filename:    img.Name,
				ContentFile: artifact,
				Timestamp:   time.Now(),
			})
			t.ProcessedImages++
		})
		return nil
	}()

	if err != nil {
		o.logger.Error("failed to process batch image", "task_id", task.ID, "filename", img.Name, "error", err)
		o.updateTask(task, func(t *Task) {
			t.Errors = append(t.Errors, ErrorEntry{
				Filename:  img.Name,
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
		})
	}
}

// fail marks the task failed and persists the record.
func (o *Orchestrator) fail(task *Task, err error) {
	o.logger.Error("batch task failed", "task_id", task.ID, "error", err)
	now := time.Now()
	o.updateTask(task, func(t *Task) {
		t.Status = StatusFailed
		t.Error = err.Error()
		t.CompletedAt = &now
	})
}

// updateTask applies a mutation under the orchestrator lock and
// persists a snapshot, so concurrent image workers never interleave
// partial updates into the record.
func (o *Orchestrator) updateTask(task *Task, mutate func(*Task)) {
	o.mu.Lock()
	mutate(task)
	snapshot := task.clone()
	o.mu.Unlock()

	if err := o.store.SaveTask(snapshot); err != nil {
		o.logger.Error("failed to persist task record", "task_id", task.ID, "error", err)
	}
}
