// Package editor is the in-memory working copy of a repository's
// translations.
//
// A Store holds the namespaces and languages of one editing session. Each
// namespace is loaded lazily: selecting it the first time moves it from
// Unloaded to Loading, and the caller fetches its files and hands them to
// Load. Rows are identified by an id minted at load time; keys are plain
// editable text, so two rows may hold the same key while editing. Row order
// is significant and is what gets written back.
//
// The store keeps a snapshot of what was last loaded or saved. SaveDiff
// reports the state to write; CommitSaved makes that state the new snapshot.
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/rs/xid"

	"github.com/minios-linux/i18ncms/config"
	"github.com/minios-linux/i18ncms/localefile"
)

var (
	ErrUnknownNamespace = errors.New("unknown namespace")
	ErrNamespaceExists  = errors.New("namespace already exists")
	ErrNotLoaded        = errors.New("namespace is not loaded")
	ErrNoSelection      = errors.New("no namespace selected")
	ErrUnknownRow       = errors.New("unknown row")
	ErrUnknownLanguage  = errors.New("unknown language")
	ErrLanguageExists   = errors.New("language already exists")
	ErrIndexOutOfRange  = errors.New("row index out of range")
	ErrInvalidNamespace = errors.New("invalid namespace name")
)

// LoadState is the lifecycle of one namespace.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Row is one translation key with its value per language. A language with
// no entry in Values has no value for the key.
type Row struct {
	ID     string
	Key    string
	Values map[string]string
}

func (r *Row) clone() Row {
	return Row{ID: r.ID, Key: r.Key, Values: maps.Clone(r.Values)}
}

// Snapshot is a namespace's file content per language.
type Snapshot map[string]localefile.Table

type namespaceState struct {
	order []string
	rows  map[string]*Row
}

// Store is the working copy. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	newID    func(ns string) string
	notifier Notifier
	log      *slog.Logger
	pending  []ScrollHint

	defaultLanguage string
	namespaces      []string
	languages       []string
	visible         map[string]bool
	selected        string
	status          map[string]LoadState
	data            map[string]*namespaceState

	originalNamespaces []string
	originalLanguages  []string
	original           map[string]Snapshot

	find findState
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the receiver of scroll hints.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithIDGenerator replaces the row id generator.
func WithIDGenerator(fn func(ns string) string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewID returns a fresh row id scoped to ns.
func NewID(ns string) string {
	return ns + "__key__" + xid.New().String()
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{newID: NewID, notifier: nopNotifier{}}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.defaultLanguage = ""
	s.namespaces = nil
	s.languages = nil
	s.visible = make(map[string]bool)
	s.selected = ""
	s.status = make(map[string]LoadState)
	s.data = make(map[string]*namespaceState)
	s.originalNamespaces = nil
	s.originalLanguages = nil
	s.original = make(map[string]Snapshot)
	s.find = findState{}
}

func (s *Store) lock() { s.mu.Lock() }

// unlock releases the lock and then delivers queued scroll hints.
func (s *Store) unlock() {
	hints := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, h := range hints {
		s.notifier.ScrollToRow(h)
	}
}

func (s *Store) scrollTo(index int, align Align) {
	s.pending = append(s.pending, ScrollHint{Namespace: s.selected, Index: index, Align: align})
}

// Init starts a session with the given namespaces and languages, discarding
// any previous state. The default language is moved to the front; all
// languages start visible.
func (s *Store) Init(namespaces, languages []string, defaultLanguage string) {
	s.lock()
	defer s.unlock()

	s.reset()
	s.defaultLanguage = defaultLanguage
	s.namespaces = slices.Clone(namespaces)
	s.languages = defaultFirst(languages, defaultLanguage)
	for _, lng := range s.languages {
		s.visible[lng] = true
	}
	s.originalNamespaces = slices.Clone(s.namespaces)
	s.originalLanguages = slices.Clone(s.languages)
}

// Close discards the session, returning the store to its initial state.
func (s *Store) Close() {
	s.lock()
	defer s.unlock()
	s.reset()
}

func defaultFirst(languages []string, def string) []string {
	out := make([]string, 0, len(languages))
	for _, lng := range languages {
		if lng == def {
			out = slices.Insert(out, 0, lng)
		} else {
			out = append(out, lng)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Namespace lifecycle
// ---------------------------------------------------------------------------

// Select makes ns the current namespace and clears the find query. It
// reports whether the caller must fetch the namespace: true only on the
// Unloaded to Loading transition, so repeated selections while a fetch is
// outstanding do not start another.
func (s *Store) Select(ns string) (needsFetch bool, err error) {
	s.lock()
	defer s.unlock()

	if !slices.Contains(s.namespaces, ns) {
		return false, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	s.selected = ns
	s.find = findState{}
	if s.status[ns] == Unloaded {
		s.status[ns] = Loading
		return true, nil
	}
	return false, nil
}

// Load completes a fetch of ns with the file content per language. If the
// selection moved to another namespace since the fetch started, the result
// is discarded, ns returns to Unloaded and Load reports false.
//
// Rows are the union of all languages' keys, default language first, then
// the other languages in list order.
func (s *Store) Load(ns string, files map[string]localefile.Table) (bool, error) {
	s.lock()
	defer s.unlock()

	if s.status[ns] != Loading {
		return false, fmt.Errorf("load %q: namespace is %s", ns, s.status[ns])
	}
	if s.selected != ns {
		s.status[ns] = Unloaded
		s.log.Debug("discarding stale namespace fetch", "namespace", ns, "selected", s.selected)
		return false, nil
	}

	snap := make(Snapshot, len(s.languages))
	for _, lng := range s.languages {
		snap[lng] = cloneTable(files[lng])
	}

	var keys []string
	seen := make(map[string]bool)
	for _, lng := range s.languages {
		for _, k := range snap[lng].Keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	st := &namespaceState{order: make([]string, 0, len(keys)), rows: make(map[string]*Row, len(keys))}
	for _, k := range keys {
		row := &Row{ID: s.newID(ns), Key: k, Values: make(map[string]string)}
		for _, lng := range s.languages {
			if v, ok := snap[lng].Values[k]; ok {
				row.Values[lng] = v
			}
		}
		st.order = append(st.order, row.ID)
		st.rows[row.ID] = row
	}

	s.data[ns] = st
	s.status[ns] = Loaded
	// The snapshot is taken in row order so that languages whose files list
	// keys in a different order are not reported as changed.
	s.original[ns] = s.tables(ns)
	return true, nil
}

// FailLoad returns ns from Loading to Unloaded after a failed fetch, so that
// selecting it again retries.
func (s *Store) FailLoad(ns string) {
	s.lock()
	defer s.unlock()
	if s.status[ns] == Loading {
		s.status[ns] = Unloaded
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (s *Store) DefaultLanguage() string {
	s.lock()
	defer s.unlock()
	return s.defaultLanguage
}

func (s *Store) Namespaces() []string {
	s.lock()
	defer s.unlock()
	return slices.Clone(s.namespaces)
}

func (s *Store) Languages() []string {
	s.lock()
	defer s.unlock()
	return slices.Clone(s.languages)
}

// VisibleLanguages returns the languages shown in the table, in order.
func (s *Store) VisibleLanguages() []string {
	s.lock()
	defer s.unlock()
	return s.visibleLanguages()
}

func (s *Store) visibleLanguages() []string {
	var out []string
	for _, lng := range s.languages {
		if s.visible[lng] {
			out = append(out, lng)
		}
	}
	return out
}

// Selected returns the current namespace, or "" if none.
func (s *Store) Selected() string {
	s.lock()
	defer s.unlock()
	return s.selected
}

// Status returns the lifecycle state of ns.
func (s *Store) Status(ns string) LoadState {
	s.lock()
	defer s.unlock()
	return s.status[ns]
}

// Rows returns copies of the rows of a loaded namespace, in order.
func (s *Store) Rows(ns string) ([]Row, error) {
	s.lock()
	defer s.unlock()
	st, ok := s.data[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotLoaded, ns)
	}
	rows := make([]Row, len(st.order))
	for i, id := range st.order {
		rows[i] = st.rows[id].clone()
	}
	return rows, nil
}

// LoadedNamespaces returns the current namespaces whose data is loaded.
func (s *Store) LoadedNamespaces() []string {
	s.lock()
	defer s.unlock()
	return s.loadedNamespaces()
}

func (s *Store) loadedNamespaces() []string {
	var out []string
	for _, ns := range s.namespaces {
		if _, ok := s.data[ns]; ok {
			out = append(out, ns)
		}
	}
	return out
}

// current returns the selected namespace's state.
func (s *Store) current() (*namespaceState, error) {
	if s.selected == "" {
		return nil, ErrNoSelection
	}
	st, ok := s.data[s.selected]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotLoaded, s.selected)
	}
	return st, nil
}

func cloneTable(t localefile.Table) localefile.Table {
	return localefile.Table{Keys: slices.Clone(t.Keys), Values: maps.Clone(t.Values)}
}

func validNamespace(ns string) error {
	if ns == "" || ns[0] == '/' || ns[len(ns)-1] == '/' {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return nil
}

func validLanguage(lng string) error {
	return config.ValidateLanguage(lng)
}
