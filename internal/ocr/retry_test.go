package ocr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/fengailin/qwen-ocr/internal/qwen"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRetrier() *Retrier {
	return NewRetrier(3, time.Millisecond, testLogger())
}

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := testRetrier().Do(t.Context(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetrierExhaustionReturnsLastError(t *testing.T) {
	last := errors.New("final failure")
	attempts := 0
	err := testRetrier().Do(t.Context(), func(ctx context.Context) error {
		attempts++
		if attempts == 3 {
			return last
		}
		return errors.New("earlier failure")
	}, nil)
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want last failure", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetrierAuthFailureRefreshesOnce(t *testing.T) {
	refreshes := 0
	authErr := &qwen.Error{Message: "rejected", StatusCode: http.StatusUnauthorized}
	err := testRetrier().Do(t.Context(), func(ctx context.Context) error {
		return authErr
	}, func(ctx context.Context) error {
		refreshes++
		return nil
	})
	if !errors.Is(err, authErr) {
		t.Fatalf("err = %v, want auth failure", err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want exactly 1", refreshes)
	}
}

func TestRetrierAuthFailureRecoversAfterRefresh(t *testing.T) {
	refreshed := false
	attempts := 0
	err := testRetrier().Do(t.Context(), func(ctx context.Context) error {
		attempts++
		if !refreshed {
			return &qwen.Error{Message: "rejected", StatusCode: http.StatusUnauthorized}
		}
		return nil
	}, func(ctx context.Context) error {
		refreshed = true
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetrierNoRefreshForNonAuthErrors(t *testing.T) {
	refreshes := 0
	err := testRetrier().Do(t.Context(), func(ctx context.Context) error {
		return &qwen.Error{Message: "server error", StatusCode: http.StatusInternalServerError}
	}, func(ctx context.Context) error {
		refreshes++
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if refreshes != 0 {
		t.Errorf("refreshes = %d, want 0", refreshes)
	}
}

func TestIsAuthFailure(t *testing.T) {
	if !isAuthFailure(&qwen.Error{StatusCode: http.StatusUnauthorized}) {
		t.Error("401 provider error should be an auth failure")
	}
	if isAuthFailure(&qwen.Error{StatusCode: http.StatusInternalServerError}) {
		t.Error("500 provider error is not an auth failure")
	}
	if isAuthFailure(errors.New("plain")) {
		t.Error("plain error is not an auth failure")
	}
}
