package accounts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fengailin/qwen-ocr/internal/config"
)

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("account not found")

// Store owns the mutable account set backed by a YAML file.
//
// Reads serve a cached snapshot that is reloaded when it ages past the TTL
// or the backing file's mtime advances. Mutations take effect in memory
// immediately and schedule a debounced save; repeated mutations within the
// debounce window collapse into a single write.
type Store struct {
	path      string
	ttl       time.Duration
	saveDelay time.Duration
	logger    *slog.Logger

	mu          sync.Mutex // guards file, loadedAt, loadedMtime, timer, dirty
	file        *File
	loadedAt    time.Time
	loadedMtime time.Time
	timer       *time.Timer
	dirty       bool

	saveMu sync.Mutex // serializes the temp-file-then-rename sequence
}

// Options tune store caching and persistence behavior.
type Options struct {
	// CacheTTL bounds snapshot staleness (default 60s).
	CacheTTL time.Duration
	// SaveDelay is the debounce window for persisting mutations (default 5s).
	SaveDelay time.Duration
	// Logger receives persistence diagnostics (default slog.Default()).
	Logger *slog.Logger
}

// NewStore creates a store backed by the YAML file at path.
// The file does not need to exist yet; it is created on first save.
func NewStore(path string, opts Options) *Store {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 60 * time.Second
	}
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		path:      path,
		ttl:       opts.CacheTTL,
		saveDelay: opts.SaveDelay,
		logger:    opts.Logger,
	}
}

// reloadIfStale refreshes the cached snapshot when needed.
// Callers must hold s.mu. Pending unsaved mutations suppress the reload so
// a scheduled save never gets overwritten by older on-disk state.
func (s *Store) reloadIfStale() {
	if s.dirty {
		return
	}
	if s.file != nil && time.Since(s.loadedAt) <= s.ttl {
		st, err := os.Stat(s.path)
		if err == nil && !st.ModTime().After(s.loadedMtime) {
			return
		}
	}
	s.load()
}

// load reads the backing file into the cache. Callers must hold s.mu.
// A missing file yields default state; a corrupt file keeps the previous
// snapshot rather than wiping accounts.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read accounts file", "path", s.path, "error", err)
		}
		if s.file == nil {
			s.file = defaultFile()
		}
		s.loadedAt = time.Now()
		return
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		s.logger.Error("failed to parse accounts file", "path", s.path, "error", err)
		if s.file == nil {
			s.file = defaultFile()
		}
		s.loadedAt = time.Now()
		return
	}

	if f.BaseAPIURL == "" {
		f.BaseAPIURL = DefaultBaseAPIURL
	}
	if f.ModelConfig.DefaultModel == "" {
		f.ModelConfig.DefaultModel = DefaultModel
	}

	s.file = &f
	s.loadedAt = time.Now()
	if st, err := os.Stat(s.path); err == nil {
		s.loadedMtime = st.ModTime()
	}
	s.logger.Debug("accounts file loaded", "path", s.path, "accounts", len(f.Accounts))
}

// scheduleSave marks the snapshot dirty and (re)arms the debounce timer.
// Callers must hold s.mu.
func (s *Store) scheduleSave() {
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.saveDelay, func() {
		if err := s.Flush(); err != nil {
			s.logger.Error("debounced accounts save failed", "error", err)
		}
	})
}

// Flush persists any pending mutations synchronously.
// Safe to call at shutdown or from tests; a no-op when nothing is dirty.
func (s *Store) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	snapshot := s.copyFile()
	s.dirty = false
	s.mu.Unlock()

	if err := s.save(snapshot); err != nil {
		// Keep the dirty flag so a later flush retries.
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.loadedAt = time.Now()
	if st, err := os.Stat(s.path); err == nil {
		s.loadedMtime = st.ModTime()
	}
	s.mu.Unlock()
	return nil
}

// save writes the snapshot to a temp file and atomically replaces the
// canonical file. The canonical file is never left partially written.
func (s *Store) save(f *File) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp accounts file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("failed to remove temp accounts file", "path", tmp, "error", rmErr)
		}
		return fmt.Errorf("failed to replace accounts file: %w", err)
	}

	s.logger.Debug("accounts file saved", "path", s.path, "accounts", len(f.Accounts))
	return nil
}

// copyFile returns a deep copy of the cached snapshot.
// Callers must hold s.mu.
func (s *Store) copyFile() *File {
	if s.file == nil {
		s.file = defaultFile()
	}
	out := &File{
		BaseAPIURL:  s.file.BaseAPIURL,
		ModelConfig: s.file.ModelConfig,
	}
	out.Accounts = make([]Account, len(s.file.Accounts))
	copy(out.Accounts, s.file.Accounts)
	if s.file.CommonCookies != nil {
		out.CommonCookies = make(map[string]string, len(s.file.CommonCookies))
		for k, v := range s.file.CommonCookies {
			out.CommonCookies[k] = v
		}
	}
	if s.file.ModelConfig.AvailableModels != nil {
		out.ModelConfig.AvailableModels = append([]string(nil), s.file.ModelConfig.AvailableModels...)
	}
	return out
}

// Accounts returns all accounts in file order.
func (s *Store) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	out := make([]Account, len(s.file.Accounts))
	copy(out, s.file.Accounts)
	return out
}

// EnabledAccounts returns accounts whose enabled flag is set.
func (s *Store) EnabledAccounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	out := make([]Account, 0, len(s.file.Accounts))
	for _, a := range s.file.Accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// ByUsername returns the account with the given username.
func (s *Store) ByUsername(username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	for _, a := range s.file.Accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", ErrNotFound, username)
}

// ByCookie resolves the enabled account whose cookie key fields match the
// given (possibly decorated) cookie string.
func (s *Store) ByCookie(cookie string) (Account, error) {
	if cookie == "" {
		return Account{}, fmt.Errorf("%w: empty cookie", ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	for _, a := range s.file.Accounts {
		if !a.Enabled || a.Cookie == "" {
			continue
		}
		if cookiesMatch(a.Cookie, cookie) {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: no enabled account matches cookie", ErrNotFound)
}

// MergedCookie decorates an account cookie with the shared common fields.
// Common cookie values may reference ${ENV_VAR}; references resolve at
// read time so the file on disk keeps the placeholder.
func (s *Store) MergedCookie(accountCookie string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	common := make(map[string]string, len(s.file.CommonCookies))
	for k, v := range s.file.CommonCookies {
		common[k] = config.ResolveEnvVars(v)
	}
	return mergeCookie(accountCookie, common)
}

// BaseURL returns the provider endpoint, with ${ENV_VAR} references
// resolved.
func (s *Store) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	return config.ResolveEnvVars(s.file.BaseAPIURL)
}

// Model returns the configured default model.
func (s *Store) Model() ModelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	return s.file.ModelConfig
}

// UpdateAccount stores a refreshed session for username, creating the
// account when it does not exist yet. The enabled flag is always set:
// a successful sign-in clears any earlier circuit-break.
func (s *Store) UpdateAccount(username, token, cookie string, expiresAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	for i := range s.file.Accounts {
		if s.file.Accounts[i].Username == username {
			s.file.Accounts[i].Token = token
			s.file.Accounts[i].Cookie = cookie
			s.file.Accounts[i].ExpiresAt = expiresAt
			s.file.Accounts[i].Enabled = true
			s.scheduleSave()
			return
		}
	}
	s.file.Accounts = append(s.file.Accounts, Account{
		Username:  username,
		Token:     token,
		Cookie:    cookie,
		ExpiresAt: expiresAt,
		Enabled:   true,
	})
	s.scheduleSave()
}

// AddAccount creates or replaces the credentials of an account.
func (s *Store) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	for i := range s.file.Accounts {
		if s.file.Accounts[i].Username == a.Username {
			s.file.Accounts[i] = a
			s.scheduleSave()
			return
		}
	}
	s.file.Accounts = append(s.file.Accounts, a)
	s.scheduleSave()
}

// SetPassword records the hashed password for an account, so later token
// refreshes can re-authenticate without the caller resending credentials.
func (s *Store) SetPassword(username, hashedPassword string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	for i := range s.file.Accounts {
		if s.file.Accounts[i].Username == username {
			s.file.Accounts[i].Password = hashedPassword
			s.scheduleSave()
			return
		}
	}
}

// RemoveAccount deletes an account by username.
func (s *Store) RemoveAccount(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	kept := s.file.Accounts[:0]
	for _, a := range s.file.Accounts {
		if a.Username != username {
			kept = append(kept, a)
		}
	}
	s.file.Accounts = kept
	s.scheduleSave()
}

// EnableAccount sets the enabled flag for username.
func (s *Store) EnableAccount(username string) {
	s.setEnabled(username, true)
}

// DisableAccount clears the enabled flag for username. Called after any
// failed sign-in as a circuit breaker against retrying broken credentials.
func (s *Store) DisableAccount(username string) {
	s.setEnabled(username, false)
}

func (s *Store) setEnabled(username string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadIfStale()
	for i := range s.file.Accounts {
		if s.file.Accounts[i].Username == username {
			if s.file.Accounts[i].Enabled != enabled {
				s.file.Accounts[i].Enabled = enabled
				s.scheduleSave()
			}
			return
		}
	}
	s.logger.Warn("account not found for enable/disable", "username", username, "enabled", enabled)
}
