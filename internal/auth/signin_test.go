package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fengailin/qwen-ocr/internal/accounts"
)

func storeWithBaseURL(t *testing.T, baseURL string) *accounts.Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	content := fmt.Sprintf("base_api_url: %s\naccounts: []\n", baseURL)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return accounts.NewStore(path, accounts.Options{
		CacheTTL:  time.Minute,
		SaveDelay: time.Hour,
	})
}

func TestSignin_Success(t *testing.T) {
	token := tokenWithExpiry(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SERVERID", Value: "srv1"})
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("POST /api/v1/auths/signin", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad signin body: %v", err)
		}
		if body["email"] != "alice" {
			t.Errorf("email = %q, want alice", body["email"])
		}
		if body["password"] != HashPassword("secret") {
			t.Error("password must be transmitted hashed")
		}
		json.NewEncoder(w).Encode(map[string]any{"token": token})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storeWithBaseURL(t, srv.URL)
	session := NewSession(Config{Store: store})

	gotToken, cookie, expiresAt, err := session.Signin(context.Background(), "alice", "secret", false)
	if err != nil {
		t.Fatalf("Signin error: %v", err)
	}
	if gotToken != token {
		t.Errorf("token = %q, want %q", gotToken, token)
	}
	if cookie == "" {
		t.Error("expected non-empty cookie")
	}
	if expiresAt <= time.Now().Unix() {
		t.Errorf("expiresAt = %d, want future", expiresAt)
	}

	a, err := store.ByUsername("alice")
	if err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if !a.Enabled || a.Token != token {
		t.Errorf("persisted account = %+v", a)
	}
	if a.Password != HashPassword("secret") {
		t.Error("hashed password should be captured for later refreshes")
	}
}

func TestSignin_KeepsSigninResponseCookies(t *testing.T) {
	token := tokenWithExpiry(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SERVERID", Value: "srv1"})
	})
	mux.HandleFunc("POST /api/v1/auths/signin", func(w http.ResponseWriter, r *http.Request) {
		// The token cookie is only issued here, not on the homepage.
		http.SetCookie(w, &http.Cookie{Name: "token", Value: token})
		json.NewEncoder(w).Encode(map[string]any{"token": token})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storeWithBaseURL(t, srv.URL)
	session := NewSession(Config{Store: store})

	_, cookie, _, err := session.Signin(context.Background(), "alice", "secret", false)
	if err != nil {
		t.Fatalf("Signin error: %v", err)
	}
	if !strings.Contains(cookie, "token="+token) {
		t.Errorf("cookie = %q, must keep the sign-in response's token cookie", cookie)
	}
	if !strings.Contains(cookie, "SERVERID=srv1") {
		t.Errorf("cookie = %q, must keep the homepage cookies", cookie)
	}

	a, err := store.ByUsername("alice")
	if err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if !strings.Contains(a.Cookie, "token="+token) {
		t.Errorf("persisted cookie = %q, token cookie lost", a.Cookie)
	}
	if _, err := store.ByCookie(cookie); err != nil {
		t.Errorf("stored cookie must resolve the account: %v", err)
	}
}

func TestSignin_HTTPFailureDisablesAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("POST /api/v1/auths/signin", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"bad credentials"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storeWithBaseURL(t, srv.URL)
	store.AddAccount(accounts.Account{Username: "alice", Enabled: true})
	session := NewSession(Config{Store: store})

	_, _, _, err := session.Signin(context.Background(), "alice", "wrong", false)
	if err == nil {
		t.Fatal("expected error")
	}
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.Error, got %T", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", authErr.StatusCode)
	}
	if authErr.RawResponse == "" {
		t.Error("expected raw response body for diagnosis")
	}

	a, _ := store.ByUsername("alice")
	if a.Enabled {
		t.Error("failed sign-in must disable the account")
	}
}

func TestSignin_MissingTokenDisablesAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SERVERID", Value: "srv1"})
	})
	mux.HandleFunc("POST /api/v1/auths/signin", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storeWithBaseURL(t, srv.URL)
	store.AddAccount(accounts.Account{Username: "alice", Enabled: true})
	session := NewSession(Config{Store: store})

	if _, _, _, err := session.Signin(context.Background(), "alice", "pw", false); err == nil {
		t.Fatal("expected error for token-less response")
	}
	a, _ := store.ByUsername("alice")
	if a.Enabled {
		t.Error("account should be disabled")
	}
}

func TestValidToken_CachedTokenSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected network call to %s", r.URL.Path)
	}))
	defer srv.Close()

	store := storeWithBaseURL(t, srv.URL)
	cached := tokenWithExpiry(t, time.Now().Add(time.Hour))
	store.AddAccount(accounts.Account{
		Username: "alice",
		Cookie:   "token=abc; SERVERID=s1",
		Token:    cached,
		Enabled:  true,
	})

	session := NewSession(Config{Store: store})
	got, err := session.ValidToken(context.Background(), "token=abc; SERVERID=s1; shared=x")
	if err != nil {
		t.Fatalf("ValidToken error: %v", err)
	}
	if got != cached {
		t.Errorf("token = %q, want cached token", got)
	}
}

func TestValidToken_ExpiredTokenTriggersSignin(t *testing.T) {
	fresh := tokenWithExpiry(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "abc"})
	})
	mux.HandleFunc("POST /api/v1/auths/signin", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": fresh})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := storeWithBaseURL(t, srv.URL)
	store.AddAccount(accounts.Account{
		Username: "alice",
		Password: HashPassword("secret"),
		Cookie:   "token=abc",
		Token:    tokenWithExpiry(t, time.Now().Add(-time.Hour)),
		Enabled:  true,
	})

	session := NewSession(Config{Store: store})
	got, err := session.ValidToken(context.Background(), "token=abc")
	if err != nil {
		t.Fatalf("ValidToken error: %v", err)
	}
	if got != fresh {
		t.Errorf("token = %q, want refreshed token", got)
	}
}

func TestValidToken_NoCredentialsFails(t *testing.T) {
	store := storeWithBaseURL(t, "http://unused.invalid")
	store.AddAccount(accounts.Account{
		Username: "alice",
		Cookie:   "token=abc",
		Token:    tokenWithExpiry(t, time.Now().Add(-time.Hour)),
		Enabled:  true,
	})

	session := NewSession(Config{Store: store})
	_, err := session.ValidToken(context.Background(), "token=abc")
	if err == nil {
		t.Fatal("expected error when no password is stored")
	}
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestValidToken_UnknownCookieFails(t *testing.T) {
	store := storeWithBaseURL(t, "http://unused.invalid")
	session := NewSession(Config{Store: store})

	if _, err := session.ValidToken(context.Background(), "token=nobody"); err == nil {
		t.Fatal("expected error for unknown cookie")
	}
}
