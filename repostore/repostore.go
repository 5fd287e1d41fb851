// Package repostore implements repos.yaml, the registry of repositories
// opened before. Each entry keeps the branches last edited in it, most recent
// first, so that a session can be resumed without typing the branch name.
//
// The file is stored in the i18ncms data directory.
package repostore

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the registry file name.
const FileName = "repos.yaml"

// Version is the registry format version.
const Version = 1

// DefaultRecentBranches caps the recent branch list when no limit is given.
const DefaultRecentBranches = 5

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Repo is one registered repository.
type Repo struct {
	Provider       string    `yaml:"provider"`
	Owner          string    `yaml:"owner"`
	Repo           string    `yaml:"repo"`
	FullName       string    `yaml:"full_name"`
	RecentBranches []string  `yaml:"recent_branches,omitempty"`
	UpdatedAt      time.Time `yaml:"updated_at"`
}

// Key identifies a repository across providers.
func (r Repo) Key() string {
	return r.Provider + ":" + r.FullName
}

// Store is the repos.yaml file.
type Store struct {
	Version int             `yaml:"version"`
	Repos   map[string]Repo `yaml:"repos"` // Key() -> repo

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
	now  func() time.Time
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the registry from dir. A missing file is an empty registry.
func Load(dir string) (*Store, error) {
	path := filepath.Join(dir, FileName)
	s := &Store{
		Version: Version,
		Repos:   make(map[string]Repo),
		path:    path,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.Repos == nil {
		s.Repos = make(map[string]Repo)
	}
	return s, nil
}

// Save writes the registry to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("registry path not set")
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(s.path), err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

// Get returns the entry for a provider and full name.
func (s *Store) Get(provider, fullName string) (Repo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Repos[Repo{Provider: provider, FullName: fullName}.Key()]
	if ok {
		r.RecentBranches = slices.Clone(r.RecentBranches)
	}
	return r, ok
}

// Put adds or replaces an entry, keeping its recent branches if r has none.
func (s *Store) Put(r Repo) Repo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.Repos[r.Key()]; ok && len(r.RecentBranches) == 0 {
		r.RecentBranches = old.RecentBranches
	}
	r.UpdatedAt = s.now().UTC()
	s.Repos[r.Key()] = r
	return r
}

// Remove deletes an entry.
func (s *Store) Remove(provider, fullName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Repos, Repo{Provider: provider, FullName: fullName}.Key())
}

// List returns the entries of provider, most recently used first. An empty
// provider lists all.
func (s *Store) List(provider string) []Repo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Repo
	for _, r := range s.Repos {
		if provider == "" || r.Provider == provider {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// ---------------------------------------------------------------------------
// Recent branches
// ---------------------------------------------------------------------------

// TouchBranch moves branch to the front of the entry's recent list, dropping
// repeats and trimming the list to limit entries. It reports false when the
// entry does not exist.
func (s *Store) TouchBranch(provider, fullName, branch string, limit int) (Repo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Repo{Provider: provider, FullName: fullName}.Key()
	r, ok := s.Repos[key]
	if !ok {
		return Repo{}, false
	}
	if limit <= 0 {
		limit = DefaultRecentBranches
	}
	recent := []string{branch}
	for _, b := range r.RecentBranches {
		if b != branch {
			recent = append(recent, b)
		}
	}
	if len(recent) > limit {
		recent = recent[:limit]
	}
	r.RecentBranches = recent
	r.UpdatedAt = s.now().UTC()
	s.Repos[key] = r
	return r, true
}

// PruneBranch removes branch from the entry's recent list. It reports
// whether the list changed.
func (s *Store) PruneBranch(provider, fullName, branch string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Repo{Provider: provider, FullName: fullName}.Key()
	r, ok := s.Repos[key]
	if !ok {
		return false
	}
	i := slices.Index(r.RecentBranches, branch)
	if i < 0 {
		return false
	}
	r.RecentBranches = slices.Delete(slices.Clone(r.RecentBranches), i, i+1)
	s.Repos[key] = r
	return true
}

// IsRecent reports whether branch is in the entry's recent list.
func (s *Store) IsRecent(provider, fullName, branch string) bool {
	r, ok := s.Get(provider, fullName)
	return ok && slices.Contains(r.RecentBranches, branch)
}

// ---------------------------------------------------------------------------
// Human-readable summary
// ---------------------------------------------------------------------------

// Summary returns a human-readable summary string.
func (s *Store) Summary() string {
	s.mu.Lock()
	n := len(s.Repos)
	s.mu.Unlock()
	if n == 0 {
		return "empty"
	}
	return fmt.Sprintf("%d repositories", n)
}
