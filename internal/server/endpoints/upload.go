package endpoints

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/api"
	"github.com/fengailin/qwen-ocr/internal/config"
	"github.com/fengailin/qwen-ocr/internal/qwen"
	"github.com/fengailin/qwen-ocr/internal/svcctx"
)

// UploadProxyEndpoint handles POST /api/upload-proxy. It forwards a
// multipart image upload to the provider and returns the provider's
// file record so the id can be recognized later.
type UploadProxyEndpoint struct{}

func (e *UploadProxyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/upload-proxy", e.handler
}

func (e *UploadProxyEndpoint) RequiresInit() bool { return true }

func (e *UploadProxyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	maxBytes := config.DefaultConfig().Pipeline.MaxUploadBytes
	if cm := svcctx.ConfigFrom(r.Context()); cm != nil {
		if v := cm.Get().Pipeline.MaxUploadBytes; v > 0 {
			maxBytes = v
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d byte limit", maxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	// Multipart writers that don't know the file type send
	// application/octet-stream, so fall back to the extension there.
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename)))
	}
	if !strings.HasPrefix(ct, "image/") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported content type %q, only images are accepted", ct))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d byte limit", maxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	cookie, err := requestCookie(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.OCRFrom(r.Context())
	info, err := svc.UploadImage(r.Context(), cookie, header.Filename, data)
	if err != nil {
		writeRecognizeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (e *UploadProxyEndpoint) Command(getServerURL func() string) *cobra.Command {
	var cookieName string
	cmd := &cobra.Command{
		Use:   "upload <image-file>",
		Short: "Upload a local image to the provider via the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp qwen.FileInfo
			path := "/api/upload-proxy" + cookieQuery(cookieName)
			if err := client.PostFile(cmd.Context(), path, "file", filepath.Base(args[0]), data, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&cookieName, "cookie-name", "", "Account username to use for the request")
	return cmd
}
