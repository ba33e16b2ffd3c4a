// Package auth performs the provider sign-in handshake and supplies valid
// bearer tokens, re-authenticating accounts transparently when their
// cached token expires.
package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fengailin/qwen-ocr/internal/accounts"
)

// defaultTokenLifetime is assumed when neither the response body nor the
// token's claims carry an expiry.
const defaultTokenLifetime = 24 * time.Hour

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:137.0) Gecko/20100101 Firefox/137.0"

// ErrNoCredentials is returned when a token refresh is needed but the
// account has no stored username/password pair.
var ErrNoCredentials = errors.New("account has no stored credentials for re-authentication")

// HashPassword returns the SHA-256 hex digest the provider expects in
// place of the raw password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Session performs sign-ins and token refreshes against the provider,
// persisting outcomes to the account store.
type Session struct {
	store  *accounts.Store
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Config holds session construction parameters.
type Config struct {
	Store   *accounts.Store
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewSession creates a Session backed by the given account store.
func NewSession(cfg Config) *Session {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		store:  cfg.Store,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// signinResponse is the subset of the sign-in response body we rely on.
type signinResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Signin performs the sign-in handshake for username and returns the fresh
// (token, cookie, expiresAt) tuple. The password is hashed before
// transmission unless the caller asserts it already is. Any failure
// disables the account and returns a *Error.
func (s *Session) Signin(ctx context.Context, username, password string, isHashed bool) (token, cookie string, expiresAt int64, err error) {
	start := s.now()
	if !isHashed {
		password = HashPassword(password)
	}

	baseURL := s.store.BaseURL()

	initialCookies, err := s.fetchInitialCookies(ctx, baseURL)
	if err != nil {
		s.store.DisableAccount(username)
		return "", "", 0, &Error{Message: "failed to fetch initial cookies", Err: err}
	}

	body, signinCookies, status, raw, err := s.postSignin(ctx, baseURL, initialCookies, username, password)
	if err != nil {
		s.store.DisableAccount(username)
		var authErr *Error
		if errors.As(err, &authErr) {
			return "", "", 0, err
		}
		return "", "", 0, &Error{Message: "sign-in request failed", Err: err}
	}
	if status != http.StatusOK {
		s.store.DisableAccount(username)
		return "", "", 0, &Error{
			Message:     fmt.Sprintf("sign-in failed: HTTP %d", status),
			StatusCode:  status,
			RawResponse: raw,
		}
	}

	if body.Token == "" {
		s.store.DisableAccount(username)
		return "", "", 0, &Error{Message: "sign-in response contained no token", RawResponse: raw}
	}

	// The sign-in response issues its own cookies (the token field among
	// them); they join the homepage cookies before decoration.
	allCookies := initialCookies
	if signinCookies != "" {
		if allCookies != "" {
			allCookies += "; " + signinCookies
		} else {
			allCookies = signinCookies
		}
	}
	cookie = s.store.MergedCookie(allCookies)
	if cookie == "" {
		s.store.DisableAccount(username)
		return "", "", 0, &Error{Message: "no cookie obtained during sign-in", RawResponse: raw}
	}

	expiresAt = body.ExpiresAt
	if expiresAt == 0 {
		if exp, ok := TokenExpiry(body.Token); ok {
			expiresAt = exp.Unix()
		} else {
			expiresAt = s.now().Add(defaultTokenLifetime).Unix()
		}
	}

	s.store.UpdateAccount(username, body.Token, cookie, expiresAt)
	s.store.SetPassword(username, password)

	s.logger.Info("sign-in succeeded",
		"username", username,
		"expires_at", expiresAt,
		"elapsed", s.now().Sub(start))
	return body.Token, cookie, expiresAt, nil
}

// fetchInitialCookies visits the provider home page with browser-like
// headers and returns the issued cookies as a "k=v; k=v" string.
func (s *Session) fetchInitialCookies(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.8,zh-TW;q=0.7,zh-HK;q=0.5,en-US;q=0.3,en;q=0.2")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return cookieString(resp), nil
}

// cookieString renders a response's Set-Cookie headers as a
// "k=v; k=v" request cookie string.
func cookieString(resp *http.Response) string {
	parts := make([]string, 0, len(resp.Cookies()))
	for _, c := range resp.Cookies() {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// postSignin submits the credentials and returns the parsed body along
// with the cookies issued on the response, the HTTP status, and the
// raw response text.
func (s *Session) postSignin(ctx context.Context, baseURL, initialCookies, username, hashedPassword string) (signinResponse, string, int, string, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    username,
		"password": hashedPassword,
	})
	if err != nil {
		return signinResponse{}, "", 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/auths/signin", bytes.NewReader(payload))
	if err != nil {
		return signinResponse{}, "", 0, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", baseURL)
	req.Header.Set("Referer", baseURL+"/auth?action=signin")
	req.Header.Set("Cookie", s.store.MergedCookie(initialCookies))

	resp, err := s.client.Do(req)
	if err != nil {
		return signinResponse{}, "", 0, "", err
	}
	defer resp.Body.Close()

	cookies := cookieString(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return signinResponse{}, cookies, resp.StatusCode, "", err
	}

	if resp.StatusCode != http.StatusOK {
		return signinResponse{}, cookies, resp.StatusCode, string(raw), nil
	}

	var body signinResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return signinResponse{}, cookies, resp.StatusCode, string(raw), &Error{
			Message:     "failed to parse sign-in response",
			RawResponse: string(raw),
			Err:         err,
		}
	}
	return body, cookies, resp.StatusCode, string(raw), nil
}

// ValidToken returns a currently-valid bearer token for the account owning
// the given cookie, re-authenticating when the cached token is expired or
// missing. This is the single choke point through which every remote call
// obtains a token.
func (s *Session) ValidToken(ctx context.Context, cookie string) (string, error) {
	account, err := s.store.ByCookie(cookie)
	if err != nil {
		return "", fmt.Errorf("cannot resolve account for cookie: %w", err)
	}

	switch StateOf(account.Token, s.now()) {
	case StateValid:
		return account.Token, nil
	case StateUnauthenticated, StateExpired:
		// fall through to refresh
	}

	if account.Username == "" || account.Password == "" {
		return "", fmt.Errorf("token expired for account %q: %w", account.Username, ErrNoCredentials)
	}

	s.logger.Info("cached token expired, re-authenticating", "username", account.Username)
	token, _, _, err := s.Signin(ctx, account.Username, account.Password, true)
	if err != nil {
		return "", err
	}
	return token, nil
}
