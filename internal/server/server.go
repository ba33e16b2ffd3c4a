package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fengailin/qwen-ocr/internal/accounts"
	"github.com/fengailin/qwen-ocr/internal/api"
	"github.com/fengailin/qwen-ocr/internal/auth"
	"github.com/fengailin/qwen-ocr/internal/batch"
	"github.com/fengailin/qwen-ocr/internal/config"
	"github.com/fengailin/qwen-ocr/internal/home"
	"github.com/fengailin/qwen-ocr/internal/ocr"
	"github.com/fengailin/qwen-ocr/internal/qwen"
	"github.com/fengailin/qwen-ocr/internal/server/endpoints"
	"github.com/fengailin/qwen-ocr/internal/svcctx"
)

// Server is the qwen-ocr HTTP server. It owns the account store, the
// recognition pipeline, and the batch orchestrator, and flushes
// pending account mutations on shutdown.
type Server struct {
	httpServer *http.Server
	homeDir    *home.Dir
	accounts   *accounts.Store
	configMgr  *config.Manager
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the server state directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}

	appCfg := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		appCfg = cfg.ConfigManager.Get()
	}

	accountsPath := appCfg.Accounts.File
	if accountsPath == "" {
		accountsPath = cfg.Home.AccountsPath()
	}
	store := accounts.NewStore(accountsPath, accounts.Options{
		CacheTTL:  time.Duration(appCfg.Accounts.CacheTTLSeconds) * time.Second,
		SaveDelay: time.Duration(appCfg.Accounts.SaveDelaySeconds) * time.Second,
		Logger:    cfg.Logger,
	})

	session := auth.NewSession(auth.Config{
		Store:   store,
		Timeout: time.Duration(appCfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		Logger:  cfg.Logger,
	})

	qwenClient := qwen.NewClient(qwen.Config{
		BaseURL: store.BaseURL(),
		Model:   store.Model().DefaultModel,
		Timeout: time.Duration(appCfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		Logger:  cfg.Logger,
	})

	ocrService := ocr.NewService(ocr.Config{
		Store:      store,
		Auth:       session,
		Client:     qwenClient,
		MaxRetries: appCfg.Pipeline.MaxRetries,
		RetryDelay: time.Duration(appCfg.Pipeline.RetryDelayMillis) * time.Millisecond,
		Timeout:    time.Duration(appCfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		Logger:     cfg.Logger,
	})

	orchestrator := batch.New(batch.Config{
		Home:                 cfg.Home,
		Accounts:             store,
		Recognizer:           ocrService,
		UploadConcurrency:    appCfg.Batch.UploadConcurrency,
		RecognizeConcurrency: appCfg.Batch.RecognizeConcurrency,
		Logger:               cfg.Logger,
	})

	s := &Server{
		homeDir:   cfg.Home,
		accounts:  store,
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
		services: &svcctx.Services{
			Accounts: store,
			Auth:     session,
			OCR:      ocrService,
			Batch:    orchestrator,
			Config:   cfg.ConfigManager,
			Home:     cfg.Home,
			Logger:   cfg.Logger,
		},
	}

	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			cfg.Logger.Info("configuration reloaded",
				"max_retries", c.Pipeline.MaxRetries,
				"upload_concurrency", c.Batch.UploadConcurrency)
		})
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start runs the server until the context is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.homeDir.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to prepare home directory: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops the HTTP server and flushes pending account writes.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.accounts.Flush(); err != nil {
		s.logger.Error("account store flush error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Accounts returns the account store.
func (s *Server) Accounts() *accounts.Store {
	return s.accounts
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable when the pipeline isn't wired yet.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil || s.services.OCR == nil || s.services.Batch == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
