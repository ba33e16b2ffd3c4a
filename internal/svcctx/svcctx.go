// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/fengailin/qwen-ocr/internal/accounts"
	"github.com/fengailin/qwen-ocr/internal/auth"
	"github.com/fengailin/qwen-ocr/internal/batch"
	"github.com/fengailin/qwen-ocr/internal/config"
	"github.com/fengailin/qwen-ocr/internal/home"
	"github.com/fengailin/qwen-ocr/internal/ocr"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Accounts *accounts.Store
	Auth     *auth.Session
	OCR      *ocr.Service
	Batch    *batch.Orchestrator
	Config   *config.Manager
	Home     *home.Dir
	Logger   *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// AccountsFrom extracts the account store from context.
func AccountsFrom(ctx context.Context) *accounts.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Accounts
	}
	return nil
}

// AuthFrom extracts the auth session from context.
func AuthFrom(ctx context.Context) *auth.Session {
	if s := ServicesFrom(ctx); s != nil {
		return s.Auth
	}
	return nil
}

// OCRFrom extracts the OCR service from context.
func OCRFrom(ctx context.Context) *ocr.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.OCR
	}
	return nil
}

// BatchFrom extracts the batch orchestrator from context.
func BatchFrom(ctx context.Context) *batch.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Batch
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
