// Package settings holds i18ncms user settings: the session credential store
// and the process configuration read from the environment.
//
// Credentials are stored in the XDG data directory:
//
//	$XDG_DATA_HOME/i18ncms/  (default: ~/.local/share/i18ncms/)
//
// Files stored:
//   - session.json: credentials of the active editing session
//   - repos.yaml: repositories opened before, with their recent branches
//
// session.json is a flat JSON object of string keys and values:
//
//	{
//	  "git_provider": "gitlab",
//	  "access_token": "...",
//	  "refresh_token": "...",
//	  "expire_in": "1767225600000"
//	}
//
// expire_in is the access token expiry in Unix milliseconds. It and
// refresh_token are absent for personal access tokens. The file is written
// with 0600 permissions.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const (
	dataDirName     = "i18ncms"
	sessionFileName = "session.json"
)

// Keys used in the session store.
const (
	KeyProvider     = "git_provider"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiresAt    = "expire_in"
)

// ErrNoSession is returned when no provider credentials are stored.
var ErrNoSession = errors.New("not logged in to a git provider")

// ---------------------------------------------------------------------------
// Key/value stores
// ---------------------------------------------------------------------------

// Store is session-scoped key/value credential storage. The authentication
// flow writes it; adapters and the token refresher read it, and the refresher
// writes rotated tokens back.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// FileStore persists credentials in a JSON file. Every call reads the file,
// so rotated tokens written by one process are seen by the next.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// load returns an empty map if the file doesn't exist or is invalid.
func (s *FileStore) load() map[string]string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return make(map[string]string)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return make(map[string]string)
	}
	return m
}

func (s *FileStore) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.load()[key]
	return v, ok
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.load()
	m[key] = value
	return s.save(m)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.load()
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.save(m)
}

// Snapshot returns a copy of all stored keys, for status display.
func (s *FileStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.load())
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session is the credential set of one editing session.
type Session struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is zero for tokens that do not expire.
	ExpiresAt time.Time
}

// Rotating reports whether the access token is short-lived and renewed
// through the refresh token.
func (s Session) Rotating() bool {
	return s.RefreshToken != "" && !s.ExpiresAt.IsZero()
}

// LoadSession reads the session from st.
func LoadSession(st Store) (Session, error) {
	provider, _ := st.Get(KeyProvider)
	access, _ := st.Get(KeyAccessToken)
	if provider == "" || access == "" {
		return Session{}, ErrNoSession
	}
	s := Session{Provider: provider, AccessToken: access}
	s.RefreshToken, _ = st.Get(KeyRefreshToken)
	if raw, ok := st.Get(KeyExpiresAt); ok && raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Session{}, fmt.Errorf("invalid %s %q: %w", KeyExpiresAt, raw, err)
		}
		s.ExpiresAt = time.UnixMilli(ms)
	}
	return s, nil
}

// SaveSession writes every field of s, removing optional keys that are empty.
func SaveSession(st Store, s Session) error {
	if err := st.Set(KeyProvider, s.Provider); err != nil {
		return err
	}
	return SaveTokens(st, s.AccessToken, s.RefreshToken, s.ExpiresAt)
}

// SaveTokens updates the token keys only, as done on rotation.
func SaveTokens(st Store, access, refresh string, expiresAt time.Time) error {
	if err := st.Set(KeyAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		if err := st.Delete(KeyRefreshToken); err != nil {
			return err
		}
	} else if err := st.Set(KeyRefreshToken, refresh); err != nil {
		return err
	}
	if expiresAt.IsZero() {
		return st.Delete(KeyExpiresAt)
	}
	return st.Set(KeyExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10))
}

// ClearSession removes all session keys.
func ClearSession(st Store) error {
	for _, k := range []string{KeyProvider, KeyAccessToken, KeyRefreshToken, KeyExpiresAt} {
		if err := st.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskToken returns a masked version of a token for display.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
