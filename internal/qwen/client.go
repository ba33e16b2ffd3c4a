package qwen

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "https://chat.qwen.ai"
	DefaultModel   = "qwen2.5-vl-72b-instruct"

	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:136.0) Gecko/20100101 Firefox/136.0"
	acceptLanguage = "zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2"
)

// Config holds configuration for the Qwen chat client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client drives the three-call OCR protocol against the Qwen chat
// service: file upload, chat creation, and streamed completion.
// Credentials are supplied per call since they vary by account.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a new Qwen chat client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger,
	}
}

// BaseURL returns the provider endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Model returns the vision model requested for recognition.
func (c *Client) Model() string {
	return c.model
}

// setBrowserHeaders applies the browser-like header set the provider
// expects on every authenticated call.
func (c *Client) setBrowserHeaders(req *http.Request, token, cookie string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("DNT", "1")
	req.Header.Set("Sec-GPC", "1")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
}
