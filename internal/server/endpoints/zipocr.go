package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/api"
	"github.com/fengailin/qwen-ocr/internal/batch"
	"github.com/fengailin/qwen-ocr/internal/svcctx"
)

// ZipSubmitResponse acknowledges an accepted archive.
type ZipSubmitResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ZipProgress reports how far a batch task has come.
type ZipProgress struct {
	TotalImages     int `json:"total_images"`
	ProcessedImages int `json:"processed_images"`
}

// ZipStatusResponse is the full status of a batch task.
type ZipStatusResponse struct {
	TaskID      string              `json:"task_id"`
	Filename    string              `json:"filename,omitempty"`
	Status      string              `json:"status"`
	Progress    ZipProgress         `json:"progress"`
	Results     []batch.ResultEntry `json:"results"`
	Errors      []batch.ErrorEntry  `json:"errors"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   string              `json:"created_at"`
	CompletedAt string              `json:"completed_at,omitempty"`
}

func statusResponse(t *batch.Task) ZipStatusResponse {
	resp := ZipStatusResponse{
		TaskID:   t.ID,
		Filename: t.Filename,
		Status:   t.Status,
		Progress: ZipProgress{
			TotalImages:     t.TotalImages,
			ProcessedImages: t.ProcessedImages,
		},
		Results:   t.Results,
		Errors:    t.Errors,
		Error:     t.Error,
		CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// ZipSubmitEndpoint handles POST /api/zip/ocr.
type ZipSubmitEndpoint struct{}

func (e *ZipSubmitEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/zip/ocr", e.handler
}

func (e *ZipSubmitEndpoint) RequiresInit() bool { return true }

func (e *ZipSubmitEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, "only .zip archives are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	orch := svcctx.BatchFrom(r.Context())
	taskID, err := orch.Submit(r.Context(), header.Filename, data)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:  "failed to submit task",
			Detail: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ZipSubmitResponse{
		TaskID:  taskID,
		Status:  batch.StatusPending,
		Message: "archive accepted, processing started",
	})
}

func (e *ZipSubmitEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <archive.zip>",
		Short: "Submit a ZIP archive of images for batch recognition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp ZipSubmitResponse
			if err := client.PostFile(cmd.Context(), "/api/zip/ocr", "file", filepath.Base(args[0]), data, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ZipStatusEndpoint handles GET /api/zip/ocr/{task_id}.
type ZipStatusEndpoint struct{}

func (e *ZipStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/zip/ocr/{task_id}", e.handler
}

func (e *ZipStatusEndpoint) RequiresInit() bool { return true }

func (e *ZipStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	orch := svcctx.BatchFrom(r.Context())
	task, err := orch.Status(taskID)
	if err != nil {
		if errors.Is(err, batch.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", taskID))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(task))
}

func (e *ZipStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a batch recognition task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ZipStatusResponse
			if err := client.Get(cmd.Context(), "/api/zip/ocr/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ZipContentEndpoint handles GET /api/zip/ocr/{task_id}/content.
type ZipContentEndpoint struct{}

func (e *ZipContentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/zip/ocr/{task_id}/content", e.handler
}

func (e *ZipContentEndpoint) RequiresInit() bool { return true }

func (e *ZipContentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	orch := svcctx.BatchFrom(r.Context())
	content, err := orch.Content(taskID)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrTaskNotFound):
			writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", taskID))
		case errors.Is(err, batch.ErrTaskNotCompleted):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

func (e *ZipContentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "content <task-id>",
		Short: "Print the combined recognized text of a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			content, err := client.GetText(cmd.Context(), "/api/zip/ocr/"+args[0]+"/content")
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		},
	}
}
