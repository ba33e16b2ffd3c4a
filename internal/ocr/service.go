// Package ocr composes account resolution, token supply, and the
// three-call recognition protocol into the recognition entry points
// the HTTP layer and batch processor call.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fengailin/qwen-ocr/internal/accounts"
	"github.com/fengailin/qwen-ocr/internal/auth"
	"github.com/fengailin/qwen-ocr/internal/qwen"
)

// DefaultPrompt instructs the model to transcribe text with LaTeX
// formulas, or to answer bare captcha characters, with no commentary.
const DefaultPrompt = "请识别图片中的内容，注意以下要求：\n" +
	"对于数学公式和普通文本：\n" +
	"1.所有数学公式和数学符号都必须使用标准的LaTeX格式\n" +
	"2.行内公式使用单个$符号包裹，如：$x^2$\n" +
	"3.独立公式块使用两个$$符号包裹，如：$$\\sum_{i=1}^ni^2$$\n" +
	"4.普通文本保持原样，不要使用LaTeX格式\n" +
	"5.保持原文的段落格式和换行\n" +
	"6.明显的换行使用\\n表示\n" +
	"7.确保所有数学符号都被正确包裹在$或$$中\n\n" +
	"对于验证码图片：\n" +
	"1.只输出验证码字符，不要加任何额外解释\n" +
	"2.忽略干扰线和噪点\n" +
	"3.注意区分相似字符，如0和O、1和l、2和Z等\n" +
	"4.验证码通常为4-6位字母数字组合\n\n" +
	"不要输出任何额外的解释或说明"

// ErrInvalidBase64 marks undecodable base64 image payloads.
var ErrInvalidBase64 = errors.New("invalid base64 image data")

// Result is the outcome of one recognition request.
type Result struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Type    string `json:"type"`
}

// Config holds the collaborators and tuning for the OCR service.
type Config struct {
	Store      *accounts.Store
	Auth       *auth.Session
	Client     *qwen.Client
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Service drives the recognition workflow end to end: resolve the
// account behind a cookie, obtain a valid token, upload, create the
// chat, stream the completion, and normalize the output. Every remote
// step runs under the retry policy.
type Service struct {
	store   *accounts.Store
	auth    *auth.Session
	qwen    *qwen.Client
	retrier *Retrier
	client  *http.Client
	logger  *slog.Logger
}

// NewService creates the OCR service.
func NewService(cfg Config) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:   cfg.Store,
		auth:    cfg.Auth,
		qwen:    cfg.Client,
		retrier: NewRetrier(cfg.MaxRetries, cfg.RetryDelay, cfg.Logger),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

// resolveAccount pins the account for the whole operation. A mid-flight
// credential refresh rewrites the stored cookie, so later attempts must
// look the account up by username rather than by the original cookie.
func (s *Service) resolveAccount(cookie string) (accounts.Account, error) {
	acct, err := s.store.ByCookie(cookie)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("no enabled account matches the supplied cookie: %w", err)
	}
	return acct, nil
}

// creds returns the token and cookie to use for the next attempt,
// re-reading the account so refreshed credentials are picked up.
func (s *Service) creds(ctx context.Context, acct accounts.Account, fallbackCookie string) (token, cookie string, err error) {
	if acct.Username != "" {
		if cur, err := s.store.ByUsername(acct.Username); err == nil {
			acct = cur
		}
	}
	cookie = acct.Cookie
	if cookie == "" {
		cookie = fallbackCookie
	}
	token, err = s.auth.ValidToken(ctx, cookie)
	if err != nil {
		return "", "", err
	}
	return token, cookie, nil
}

// refresher returns the credential-refresh callback handed to the
// retry policy: a forced re-signin with the account's stored hashed
// password.
func (s *Service) refresher(acct accounts.Account) func(context.Context) error {
	return func(ctx context.Context) error {
		cur := acct
		if acct.Username != "" {
			if latest, err := s.store.ByUsername(acct.Username); err == nil {
				cur = latest
			}
		}
		if cur.Username == "" || cur.Password == "" {
			return auth.ErrNoCredentials
		}
		s.logger.Info("refreshing credentials after authorization failure", "username", cur.Username)
		_, _, _, err := s.auth.Signin(ctx, cur.Username, cur.Password, true)
		return err
	}
}

// UploadImage uploads image bytes on behalf of the account behind the
// cookie and returns the provider file identity.
func (s *Service) UploadImage(ctx context.Context, cookie, filename string, data []byte) (*qwen.FileInfo, error) {
	acct, err := s.resolveAccount(cookie)
	if err != nil {
		return nil, err
	}

	var info *qwen.FileInfo
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		token, reqCookie, err := s.creds(ctx, acct, cookie)
		if err != nil {
			return err
		}
		info, err = s.qwen.UploadImage(ctx, token, reqCookie, filename, data)
		return err
	}, s.refresher(acct))
	if err != nil {
		return nil, err
	}
	return info, nil
}

// RecognizeFile runs chat creation and the streamed completion for an
// already uploaded file and normalizes the result.
func (s *Service) RecognizeFile(ctx context.Context, cookie string, file *qwen.FileInfo, prompt string) (*Result, error) {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	acct, err := s.resolveAccount(cookie)
	if err != nil {
		return nil, err
	}

	var raw string
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		token, reqCookie, err := s.creds(ctx, acct, cookie)
		if err != nil {
			return err
		}
		chat, err := s.qwen.CreateChat(ctx, token, reqCookie, file, prompt)
		if err != nil {
			return err
		}
		raw, err = s.qwen.StreamCompletion(ctx, token, reqCookie, chat, file, prompt)
		return err
	}, s.refresher(acct))
	if err != nil {
		return nil, err
	}

	text, kind := qwen.Normalize(raw)
	return &Result{Success: true, Result: text, Type: kind}, nil
}

// RecognizeFileID recognizes a file already known to the provider by
// its bare id.
func (s *Service) RecognizeFileID(ctx context.Context, cookie, fileID, prompt string) (*Result, error) {
	return s.RecognizeFile(ctx, cookie, qwen.FileInfoFromID(fileID), prompt)
}

// RecognizeURL downloads the image at url, uploads it, and recognizes
// it. A failed download fails the whole operation.
func (s *Service) RecognizeURL(ctx context.Context, url, cookie, prompt string) (*Result, error) {
	data, err := s.fetchImage(ctx, url)
	if err != nil {
		return nil, err
	}
	info, err := s.UploadImage(ctx, cookie, "image", data)
	if err != nil {
		return nil, err
	}
	return s.RecognizeFile(ctx, cookie, info, prompt)
}

// RecognizeBase64 decodes a bare base64 string or data URI, uploads
// the image, and recognizes it.
func (s *Service) RecognizeBase64(ctx context.Context, data, cookie, prompt string) (*Result, error) {
	payload := data
	if strings.HasPrefix(payload, "data:") {
		_, rest, ok := strings.Cut(payload, "base64,")
		if !ok {
			return nil, fmt.Errorf("%w: data URI has no base64 payload", ErrInvalidBase64)
		}
		payload = rest
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	info, err := s.UploadImage(ctx, cookie, "image.png", raw)
	if err != nil {
		return nil, err
	}
	return s.RecognizeFile(ctx, cookie, info, prompt)
}

// fetchImage downloads the image bytes under the retry policy.
func (s *Service) fetchImage(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &qwen.Error{
				Message:    fmt.Sprintf("image download failed with status %d", resp.StatusCode),
				StatusCode: resp.StatusCode,
			}
		}
		data, err = io.ReadAll(resp.Body)
		return err
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return data, nil
}
