package ocr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fengailin/qwen-ocr/internal/qwen"
)

// Retrier re-executes fallible provider operations with bounded
// attempts and linearly growing backoff. An authorization failure gets
// one credential refresh before the next attempt, and that attempt
// runs without waiting out a backoff delay.
type Retrier struct {
	attempts  uint
	baseDelay time.Duration
	logger    *slog.Logger
}

// NewRetrier creates a retrier. Non-positive arguments fall back to
// 3 attempts and a 500ms base delay.
func NewRetrier(maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		attempts:  uint(maxAttempts),
		baseDelay: baseDelay,
		logger:    logger,
	}
}

// isAuthFailure reports whether err is the provider rejecting the
// current credentials.
func isAuthFailure(err error) bool {
	var qerr *qwen.Error
	if errors.As(err, &qerr) {
		return qerr.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Do runs op until it succeeds or attempts are exhausted, returning
// the last failure. refresh may be nil; when set it is invoked at most
// once per Do, after the first authorization failure.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error, refresh func(context.Context) error) error {
	refreshed := false
	skipDelay := false

	return retry.Do(
		func() error {
			err := op(ctx)
			if err == nil {
				return nil
			}
			skipDelay = false
			if refresh != nil && !refreshed && isAuthFailure(err) {
				refreshed = true
				if rerr := refresh(ctx); rerr != nil {
					r.logger.Warn("credential refresh failed", "error", rerr)
				} else {
					skipDelay = true
				}
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			if skipDelay {
				return 0
			}
			return r.baseDelay * time.Duration(n+1)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("retrying provider operation", "attempt", n+1, "error", err)
		}),
	)
}
