package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fengailin/qwen-ocr/internal/accounts"
	"github.com/fengailin/qwen-ocr/internal/ocr"
	"github.com/fengailin/qwen-ocr/internal/qwen"
	"github.com/fengailin/qwen-ocr/internal/svcctx"
)

func testStore(t *testing.T) *accounts.Store {
	t.Helper()
	store := accounts.NewStore(filepath.Join(t.TempDir(), "accounts.yaml"), accounts.Options{})
	store.UpdateAccount("first", "tok1", "token=tok1", 0)
	store.UpdateAccount("second", "tok2", "token=tok2", 0)
	return store
}

func requestWithStore(t *testing.T, store *accounts.Store, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, nil)
	ctx := svcctx.WithServices(req.Context(), &svcctx.Services{Accounts: store})
	return req.WithContext(ctx)
}

func TestRequestCookieDefaultsToFirstEnabled(t *testing.T) {
	store := testStore(t)
	cookie, err := requestCookie(requestWithStore(t, store, "/api/recognize/url"))
	if err != nil {
		t.Fatalf("requestCookie() error = %v", err)
	}
	if cookie != "token=tok1" {
		t.Errorf("cookie = %q, want first account's", cookie)
	}
}

func TestRequestCookieByName(t *testing.T) {
	store := testStore(t)
	cookie, err := requestCookie(requestWithStore(t, store, "/api/recognize/url?cookie_name=second"))
	if err != nil {
		t.Fatalf("requestCookie() error = %v", err)
	}
	if cookie != "token=tok2" {
		t.Errorf("cookie = %q, want second account's", cookie)
	}
}

func TestRequestCookieUnknownName(t *testing.T) {
	store := testStore(t)
	if _, err := requestCookie(requestWithStore(t, store, "/api/recognize/url?cookie_name=ghost")); err == nil {
		t.Fatal("expected error for unknown cookie_name")
	}
}

func TestRequestCookieNoEnabledAccounts(t *testing.T) {
	store := testStore(t)
	store.DisableAccount("first")
	store.DisableAccount("second")
	if _, err := requestCookie(requestWithStore(t, store, "/api/recognize/url")); err == nil {
		t.Fatal("expected error when every account is disabled")
	}
}

func TestWriteRecognizeErrorProviderStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRecognizeError(rec, &qwen.Error{
		Message:     "rate limited",
		StatusCode:  http.StatusTooManyRequests,
		RawResponse: `{"detail":"slow down"}`,
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status_code field = %d", body.StatusCode)
	}
	if body.RawResponse == "" {
		t.Error("raw_response should carry the provider body")
	}
}

func TestWriteRecognizeErrorBadInput(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRecognizeError(rec, ocr.ErrInvalidBase64)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWriteRecognizeErrorGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRecognizeError(rec, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Detail != "boom" {
		t.Errorf("detail = %q", body.Detail)
	}
}
