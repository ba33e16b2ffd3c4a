package accounts

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "accounts.yaml"), Options{
		CacheTTL:  time.Minute,
		SaveDelay: 10 * time.Millisecond,
	})
}

func TestStore_MissingFileUsesDefaults(t *testing.T) {
	s := newTestStore(t)

	if got := s.BaseURL(); got != DefaultBaseAPIURL {
		t.Errorf("BaseURL = %q, want %q", got, DefaultBaseAPIURL)
	}
	if got := s.Model().DefaultModel; got != DefaultModel {
		t.Errorf("DefaultModel = %q, want %q", got, DefaultModel)
	}
	if got := len(s.Accounts()); got != 0 {
		t.Errorf("expected no accounts, got %d", got)
	}
}

func TestStore_UpdateAccountCreatesAndEnables(t *testing.T) {
	s := newTestStore(t)

	s.UpdateAccount("alice", "tok1", "token=abc", 123)

	a, err := s.ByUsername("alice")
	if err != nil {
		t.Fatalf("ByUsername error: %v", err)
	}
	if a.Token != "tok1" || a.ExpiresAt != 123 || !a.Enabled {
		t.Errorf("unexpected account state: %+v", a)
	}

	s.DisableAccount("alice")
	a, _ = s.ByUsername("alice")
	if a.Enabled {
		t.Error("account should be disabled")
	}

	// A successful refresh re-enables.
	s.UpdateAccount("alice", "tok2", "token=abc", 456)
	a, _ = s.ByUsername("alice")
	if !a.Enabled {
		t.Error("UpdateAccount should re-enable the account")
	}
	if a.Token != "tok2" {
		t.Errorf("Token = %q, want tok2", a.Token)
	}
}

func TestStore_ByCookieMatchesKeyFields(t *testing.T) {
	s := newTestStore(t)
	s.AddAccount(Account{Username: "alice", Cookie: "token=abc; SERVERID=s1", Enabled: true})
	s.AddAccount(Account{Username: "bob", Cookie: "token=xyz; SERVERID=s2", Enabled: true})

	// Decorated with shared fields that no account carries.
	a, err := s.ByCookie("token=xyz; SERVERID=s2; acw_tc=shared")
	if err != nil {
		t.Fatalf("ByCookie error: %v", err)
	}
	if a.Username != "bob" {
		t.Errorf("matched %q, want bob", a.Username)
	}

	if _, err := s.ByCookie(""); err == nil {
		t.Error("empty cookie should not match")
	}
}

func TestStore_ByCookieSkipsDisabled(t *testing.T) {
	s := newTestStore(t)
	s.AddAccount(Account{Username: "alice", Cookie: "token=abc", Enabled: false})

	if _, err := s.ByCookie("token=abc"); err == nil {
		t.Error("disabled account should not match by cookie")
	}
}

func TestStore_DebouncedSaveWritesOnce(t *testing.T) {
	s := newTestStore(t)

	// Burst of mutations inside the debounce window.
	for i := 0; i < 10; i++ {
		s.UpdateAccount("alice", "tok", "token=abc", int64(i))
	}

	// Before the window elapses nothing may be on disk yet; after Flush the
	// final state must be.
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("accounts file not written: %v", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		t.Fatalf("accounts file not parseable: %v", err)
	}
	if len(f.Accounts) != 1 || f.Accounts[0].ExpiresAt != 9 {
		t.Errorf("persisted state = %+v, want single account with expires_at 9", f.Accounts)
	}
}

func TestStore_ConcurrentMutationsKeepFileParseable(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.UpdateAccount("alice", "tok", "token=abc", int64(n*100+j))
				s.DisableAccount("alice")
				s.EnableAccount("alice")
			}
		}(i)
	}
	wg.Wait()

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read accounts file: %v", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		t.Fatalf("accounts file corrupted by concurrent mutation: %v", err)
	}
}

func TestStore_SaveFailureKeepsCanonicalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	if err := os.WriteFile(path, []byte("base_api_url: https://chat.qwen.ai\naccounts: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, Options{CacheTTL: time.Minute, SaveDelay: time.Hour})
	s.UpdateAccount("alice", "tok", "token=abc", 1)

	// Simulate interruption between temp write and rename: a leftover temp
	// file must never corrupt the canonical one.
	if err := os.WriteFile(path+".tmp", []byte("partial: ["), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		t.Fatalf("canonical file must remain valid: %v", err)
	}
}

func TestStore_ReloadsWhenFileChangesOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	if err := os.WriteFile(path, []byte("accounts:\n  - username: alice\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, Options{CacheTTL: time.Hour, SaveDelay: time.Hour})
	if _, err := s.ByUsername("alice"); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// Rewrite with a future mtime; TTL has not elapsed but mtime advanced.
	if err := os.WriteFile(path, []byte("accounts:\n  - username: bob\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ByUsername("bob"); err != nil {
		t.Errorf("expected reload to pick up bob: %v", err)
	}
}

func TestStore_ResolvesEnvVarsAtReadTime(t *testing.T) {
	t.Setenv("QWEN_OCR_TEST_BASE", "https://env.example.com")
	t.Setenv("QWEN_OCR_TEST_SSXMOD", "sig-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	raw := "base_api_url: ${QWEN_OCR_TEST_BASE}\n" +
		"common_cookies:\n  ssxmod_itna: ${QWEN_OCR_TEST_SSXMOD}\n" +
		"accounts:\n  - username: alice\n    cookie: token=abc\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, Options{CacheTTL: time.Minute, SaveDelay: 10 * time.Millisecond})
	if got := s.BaseURL(); got != "https://env.example.com" {
		t.Errorf("BaseURL = %q, want resolved env value", got)
	}
	merged := s.MergedCookie("token=abc")
	if !strings.Contains(merged, "ssxmod_itna=sig-from-env") {
		t.Errorf("MergedCookie = %q, want resolved common cookie", merged)
	}

	// A save must keep the placeholders; resolution happens only on read.
	s.UpdateAccount("alice", "tok", "token=def", 0)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(onDisk), "${QWEN_OCR_TEST_BASE}") {
		t.Errorf("saved file lost the base_api_url placeholder:\n%s", onDisk)
	}
	if !strings.Contains(string(onDisk), "${QWEN_OCR_TEST_SSXMOD}") {
		t.Errorf("saved file lost the common cookie placeholder:\n%s", onDisk)
	}
}

func TestAccount_EnabledDefaultsTrue(t *testing.T) {
	var f File
	if err := yaml.Unmarshal([]byte("accounts:\n  - username: alice\n  - username: bob\n    enabled: false\n"), &f); err != nil {
		t.Fatal(err)
	}
	if !f.Accounts[0].Enabled {
		t.Error("enabled should default to true when absent")
	}
	if f.Accounts[1].Enabled {
		t.Error("explicit enabled: false must be honored")
	}
}
