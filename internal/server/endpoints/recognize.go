package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/fengailin/qwen-ocr/internal/accounts"
	"github.com/fengailin/qwen-ocr/internal/api"
	"github.com/fengailin/qwen-ocr/internal/ocr"
	"github.com/fengailin/qwen-ocr/internal/qwen"
	"github.com/fengailin/qwen-ocr/internal/svcctx"
)

// RecognizeURLRequest is the request body for URL-based recognition.
type RecognizeURLRequest struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt,omitempty"`
}

// RecognizeBase64Request is the request body for base64-based recognition.
type RecognizeBase64Request struct {
	Base64Image string `json:"base64Image"`
	Prompt      string `json:"prompt,omitempty"`
}

// RecognizeFileRequest is the request body for recognizing an already
// uploaded provider file by id.
type RecognizeFileRequest struct {
	ImageID string `json:"imageId"`
	Prompt  string `json:"prompt,omitempty"`
}

// requestCookie resolves which account cookie to use for a request.
// The cookie_name query parameter selects an account by username;
// without it the first enabled account is used.
func requestCookie(r *http.Request) (string, error) {
	store := svcctx.AccountsFrom(r.Context())
	if store == nil {
		return "", errors.New("account store not initialized")
	}

	var acct accounts.Account
	if name := r.URL.Query().Get("cookie_name"); name != "" {
		found, err := store.ByUsername(name)
		if err != nil {
			return "", fmt.Errorf("unknown cookie_name %q", name)
		}
		acct = found
	} else {
		enabled := store.EnabledAccounts()
		if len(enabled) == 0 {
			return "", errors.New("no enabled accounts configured")
		}
		acct = enabled[0]
	}

	return store.MergedCookie(acct.Cookie), nil
}

// writeRecognizeError maps pipeline failures onto HTTP responses.
// Provider errors carry their upstream status code and raw body.
func writeRecognizeError(w http.ResponseWriter, err error) {
	var qerr *qwen.Error
	if errors.As(err, &qerr) {
		status := qerr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, ErrorResponse{
			Error:       "recognition failed",
			Detail:      err.Error(),
			StatusCode:  qerr.StatusCode,
			RawResponse: qerr.RawResponse,
		})
		return
	}
	if errors.Is(err, ocr.ErrInvalidBase64) || errors.Is(err, accounts.ErrNotFound) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:  "recognition failed",
		Detail: err.Error(),
	})
}

// RecognizeURLEndpoint handles POST /api/recognize/url.
type RecognizeURLEndpoint struct{}

func (e *RecognizeURLEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/recognize/url", e.handler
}

func (e *RecognizeURLEndpoint) RequiresInit() bool { return true }

func (e *RecognizeURLEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req RecognizeURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "imageUrl is required")
		return
	}

	cookie, err := requestCookie(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.OCRFrom(r.Context())
	result, err := svc.RecognizeURL(r.Context(), req.ImageURL, cookie, req.Prompt)
	if err != nil {
		writeRecognizeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *RecognizeURLEndpoint) Command(getServerURL func() string) *cobra.Command {
	var cookieName string
	cmd := &cobra.Command{
		Use:   "url <image-url>",
		Short: "Recognize text in an image fetched from a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ocr.Result
			path := "/api/recognize/url" + cookieQuery(cookieName)
			if err := client.Post(cmd.Context(), path, RecognizeURLRequest{ImageURL: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&cookieName, "cookie-name", "", "Account username to use for the request")
	return cmd
}

// RecognizeBase64Endpoint handles POST /api/recognize/base64.
type RecognizeBase64Endpoint struct{}

func (e *RecognizeBase64Endpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/recognize/base64", e.handler
}

func (e *RecognizeBase64Endpoint) RequiresInit() bool { return true }

func (e *RecognizeBase64Endpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req RecognizeBase64Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Base64Image == "" {
		writeError(w, http.StatusBadRequest, "base64Image is required")
		return
	}

	cookie, err := requestCookie(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.OCRFrom(r.Context())
	result, err := svc.RecognizeBase64(r.Context(), req.Base64Image, cookie, req.Prompt)
	if err != nil {
		writeRecognizeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *RecognizeBase64Endpoint) Command(getServerURL func() string) *cobra.Command {
	var cookieName string
	cmd := &cobra.Command{
		Use:   "base64 <base64-data>",
		Short: "Recognize text in a base64-encoded image or data URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ocr.Result
			path := "/api/recognize/base64" + cookieQuery(cookieName)
			if err := client.Post(cmd.Context(), path, RecognizeBase64Request{Base64Image: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&cookieName, "cookie-name", "", "Account username to use for the request")
	return cmd
}

// RecognizeFileEndpoint handles POST /api/recognize/file.
type RecognizeFileEndpoint struct{}

func (e *RecognizeFileEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/recognize/file", e.handler
}

func (e *RecognizeFileEndpoint) RequiresInit() bool { return true }

func (e *RecognizeFileEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req RecognizeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ImageID == "" {
		writeError(w, http.StatusBadRequest, "imageId is required")
		return
	}

	cookie, err := requestCookie(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := svcctx.OCRFrom(r.Context())
	result, err := svc.RecognizeFileID(r.Context(), cookie, req.ImageID, req.Prompt)
	if err != nil {
		writeRecognizeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *RecognizeFileEndpoint) Command(getServerURL func() string) *cobra.Command {
	var cookieName string
	cmd := &cobra.Command{
		Use:   "file <image-id>",
		Short: "Recognize text in an already uploaded image by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ocr.Result
			path := "/api/recognize/file" + cookieQuery(cookieName)
			if err := client.Post(cmd.Context(), path, RecognizeFileRequest{ImageID: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&cookieName, "cookie-name", "", "Account username to use for the request")
	return cmd
}

func cookieQuery(name string) string {
	if name == "" {
		return ""
	}
	return "?cookie_name=" + url.QueryEscape(name)
}
