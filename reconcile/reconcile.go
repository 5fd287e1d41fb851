// Package reconcile turns the editor's pending changes into one commit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/minios-linux/i18ncms/config"
	"github.com/minios-linux/i18ncms/editor"
	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/keypath"
	"github.com/minios-linux/i18ncms/localefile"
)

var (
	// ErrSaveInProgress is returned when a save starts while another one is
	// still running.
	ErrSaveInProgress = errors.New("a save is already in progress")
	// ErrNothingToSave is returned when the working copy matches the last
	// saved state.
	ErrNothingToSave = errors.New("nothing to save")
)

// DuplicateKeysError lists, per namespace, keys that would overwrite each
// other when written. No network call is made while it is returned.
type DuplicateKeysError struct {
	Keys map[string]map[string]int
}

func (e *DuplicateKeysError) Error() string {
	namespaces := make([]string, 0, len(e.Keys))
	for ns := range e.Keys {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	parts := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		keys := make([]string, 0, len(e.Keys[ns]))
		for k := range e.Keys[ns] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts = append(parts, fmt.Sprintf("%s: %s", ns, strings.Join(keys, ", ")))
	}
	return "duplicated keys: " + strings.Join(parts, "; ")
}

// InvalidKeyError is a key that cannot be written in a nested file format.
type InvalidKeyError struct {
	Namespace string
	Key       string
}

func (e *InvalidKeyError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("namespace %q has an empty key", e.Namespace)
	}
	return fmt.Sprintf("namespace %q: key %q has an empty path segment", e.Namespace, e.Key)
}

// Store is the editor state the reconciler reads and updates.
type Store interface {
	LoadedNamespaces() []string
	DuplicateKeys(ns string) (map[string]int, error)
	SaveDiff() editor.SaveDiff
	CommitSaved(editor.SaveDiff)
}

// Committer writes one commit.
type Committer interface {
	CommitFiles(ctx context.Context, in gitprovider.CommitInput) (gitprovider.CommitResult, error)
}

// Request names the target of a save.
type Request struct {
	Repo    gitprovider.RepoRef
	Branch  string
	Message string
	Config  *config.RepoConfig
}

// Plan is the file content of one commit.
type Plan struct {
	Writes  map[string][]byte
	Deletes []string
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool { return len(p.Writes) == 0 && len(p.Deletes) == 0 }

// Reconciler saves the store through a committer. Only one save runs at a
// time.
type Reconciler struct {
	store     Store
	committer Committer
	log       *slog.Logger
	saving    atomic.Bool
}

// New returns a Reconciler. A nil log uses slog.Default().
func New(store Store, committer Committer, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, committer: committer, log: log}
}

// Save validates the working copy, commits the changed files and, on
// success, records the saved state in the store.
func (r *Reconciler) Save(ctx context.Context, req Request) (gitprovider.CommitResult, error) {
	if !r.saving.CompareAndSwap(false, true) {
		return gitprovider.CommitResult{}, ErrSaveInProgress
	}
	defer r.saving.Store(false)

	if err := r.checkDuplicates(); err != nil {
		return gitprovider.CommitResult{}, err
	}

	diff := r.store.SaveDiff()
	plan, err := BuildPlan(req.Config, &diff)
	if err != nil {
		return gitprovider.CommitResult{}, err
	}
	if plan.Empty() {
		return gitprovider.CommitResult{}, ErrNothingToSave
	}

	r.log.Info("committing translations",
		"repo", req.Repo.FullName(), "branch", req.Branch,
		"writes", len(plan.Writes), "deletes", len(plan.Deletes))

	res, err := r.committer.CommitFiles(ctx, gitprovider.CommitInput{
		RepoRef:       req.Repo,
		Branch:        req.Branch,
		Message:       req.Message,
		FilesToWrite:  plan.Writes,
		FilesToDelete: plan.Deletes,
	})
	if err != nil {
		return gitprovider.CommitResult{}, fmt.Errorf("committing translations: %w", err)
	}
	r.store.CommitSaved(diff)
	return res, nil
}

func (r *Reconciler) checkDuplicates() error {
	found := make(map[string]map[string]int)
	for _, ns := range r.store.LoadedNamespaces() {
		dups, err := r.store.DuplicateKeys(ns)
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			found[ns] = dups
		}
	}
	if len(found) > 0 {
		return &DuplicateKeysError{Keys: found}
	}
	return nil
}

// BuildPlan computes the files to write and delete. A (namespace, language)
// file is written when its content or key order differs from the last
// saved state, or when it was never saved. Files of namespaces or languages
// that were removed are deleted. Paths come from the config's write
// pattern.
func BuildPlan(cfg *config.RepoConfig, diff *editor.SaveDiff) (*Plan, error) {
	pat := cfg.WritePattern()
	nested := cfg.FileType != localefile.Properties
	plan := &Plan{Writes: make(map[string][]byte)}

	for _, ns := range diff.Namespaces {
		snap, ok := diff.Data[ns]
		if !ok {
			continue
		}
		for _, lng := range diff.Languages {
			if !diff.Changed(ns, lng) {
				continue
			}
			tbl := snap[lng]
			if err := checkKeys(ns, tbl.Keys, nested); err != nil {
				return nil, err
			}
			data, err := localefile.Encode(cfg.FileType, tbl)
			if err != nil {
				return nil, fmt.Errorf("encoding %s/%s: %w", ns, lng, err)
			}
			plan.Writes[pat.Path(lng, ns)] = data
		}
	}

	for _, pair := range diff.Removed() {
		p := pat.Path(pair[1], pair[0])
		if _, ok := plan.Writes[p]; ok || slices.Contains(plan.Deletes, p) {
			continue
		}
		plan.Deletes = append(plan.Deletes, p)
	}
	return plan, nil
}

func checkKeys(ns string, keys []string, nested bool) error {
	for _, k := range keys {
		if k == "" {
			return &InvalidKeyError{Namespace: ns}
		}
		if nested && slices.Contains(keypath.Split(k), "") {
			return &InvalidKeyError{Namespace: ns, Key: k}
		}
	}
	return nil
}
