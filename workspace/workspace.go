// Package workspace runs an editing session: it opens a repository, walks
// the branch selection flow, fetches namespaces into the editor store and
// saves the store back as one commit.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/minios-linux/i18ncms/config"
	"github.com/minios-linux/i18ncms/editor"
	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/localefile"
	"github.com/minios-linux/i18ncms/reconcile"
	"github.com/minios-linux/i18ncms/repostore"
)

// Commit messages used by the workspace.
const (
	SetupConfigMessage = "Setup i18n-cms config"
	SaveMessage        = "Update translations"
)

// Limits.
const (
	DefaultCacheSize = 256
	fetchConcurrency = 4
)

var (
	// ErrNoRepo is returned by operations that need an open repository.
	ErrNoRepo = errors.New("no repository open")

	// ErrNoBranch is returned by operations that need a selected branch.
	ErrNoBranch = errors.New("no branch selected")

	// ErrReadOnly is returned when the current user cannot push to the
	// repository.
	ErrReadOnly = errors.New("write access to the repository is required")
)

// Options configure a Workspace.
type Options struct {
	Provider gitprovider.Provider
	// Registry remembers opened repositories; nil disables it.
	Registry *repostore.Store
	Notifier editor.Notifier
	Log      *slog.Logger

	CacheSize      int
	RecentBranches int
}

// Workspace is one editing session over a repository branch.
type Workspace struct {
	provider   gitprovider.Provider
	registry   *repostore.Store
	log        *slog.Logger
	recent     int
	resolver   *config.Resolver
	store      *editor.Store
	reconciler *reconcile.Reconciler

	cache   *lru.Cache[string, []byte] // commit hash + path -> content
	content singleflight.Group

	mu         sync.Mutex
	repo       *gitprovider.Repo
	branch     string
	commitHash string
	cfg        *config.RepoConfig
}

// New returns an empty workspace.
func New(opts Options) (*Workspace, error) {
	if opts.Provider == nil {
		return nil, errors.New("workspace: provider is required")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating content cache: %w", err)
	}

	storeOpts := []editor.Option{editor.WithLogger(opts.Log)}
	if opts.Notifier != nil {
		storeOpts = append(storeOpts, editor.WithNotifier(opts.Notifier))
	}
	store := editor.New(storeOpts...)

	return &Workspace{
		provider:   opts.Provider,
		registry:   opts.Registry,
		log:        opts.Log,
		recent:     opts.RecentBranches,
		resolver:   config.NewResolver(opts.Provider, opts.Log),
		store:      store,
		reconciler: reconcile.New(store, opts.Provider, opts.Log),
		cache:      cache,
	}, nil
}

// Store returns the editor store of the session.
func (w *Workspace) Store() *editor.Store { return w.store }

// Repo returns the open repository.
func (w *Workspace) Repo() (gitprovider.Repo, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.repo == nil {
		return gitprovider.Repo{}, false
	}
	return *w.repo, true
}

// Branch returns the selected branch and the commit its content is read at.
func (w *Workspace) Branch() (name, commitHash string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.branch, w.commitHash
}

// Config returns the configuration of the selected branch.
func (w *Workspace) Config() *config.RepoConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// OpenRepo loads ref and makes it the session repository. The user must be
// able to push to it. A repository that cannot be opened is dropped from
// the registry.
func (w *Workspace) OpenRepo(ctx context.Context, ref gitprovider.RepoRef) (gitprovider.Repo, error) {
	repo, err := w.provider.GetRepo(ctx, ref)
	if err == nil && repo.Permission != gitprovider.PermissionWrite {
		err = fmt.Errorf("%s: %w", repo.FullName, ErrReadOnly)
	}
	if err != nil {
		if errors.Is(err, ErrReadOnly) || errors.Is(err, gitprovider.ErrRepoNotFound) {
			w.forget(ref)
		}
		return gitprovider.Repo{}, err
	}
	w.use(repo)
	return repo, nil
}

// CreateRepo creates a repository and makes it the session repository.
func (w *Workspace) CreateRepo(ctx context.Context, in gitprovider.CreateRepoInput) (gitprovider.Repo, error) {
	repo, err := w.provider.CreateRepo(ctx, in)
	if err != nil {
		return gitprovider.Repo{}, err
	}
	w.use(repo)
	return repo, nil
}

func (w *Workspace) use(repo gitprovider.Repo) {
	w.mu.Lock()
	w.repo = &repo
	w.branch, w.commitHash, w.cfg = "", "", nil
	w.mu.Unlock()
	w.store.Close()

	if w.registry == nil {
		return
	}
	w.registry.Put(repostore.Repo{
		Provider: string(w.provider.Kind()),
		Owner:    repo.Owner,
		Repo:     repo.Repo,
		FullName: repo.FullName,
	})
	w.saveRegistry()
}

func (w *Workspace) forget(ref gitprovider.RepoRef) {
	if w.registry == nil {
		return
	}
	if _, ok := w.registry.Get(string(w.provider.Kind()), ref.FullName()); !ok {
		return
	}
	w.log.Info("removing repository from registry", "repo", ref.FullName())
	w.registry.Remove(string(w.provider.Kind()), ref.FullName())
	w.saveRegistry()
}

func (w *Workspace) saveRegistry() {
	if err := w.registry.Save(); err != nil {
		w.log.Warn("could not save repository registry", "error", err)
	}
}

// RecentBranches returns the branches last used in the open repository.
func (w *Workspace) RecentBranches() []string {
	repo, ok := w.Repo()
	if !ok || w.registry == nil {
		return nil
	}
	r, _ := w.registry.Get(string(w.provider.Kind()), repo.FullName)
	return r.RecentBranches
}

// ---------------------------------------------------------------------------
// Branch selection
// ---------------------------------------------------------------------------

// BranchRequest selects the branch to edit. With Base set, Name is created
// from the head of Base; otherwise Name must exist.
type BranchRequest struct {
	Name string
	Base string
}

// UseBranch selects the branch to edit, creating it when asked, and
// initialises the editor from the branch configuration.
//
// The configuration is resolved before a branch is created, on the base
// branch, so a repository without configuration gets no stray branch. A
// protected branch is refused. A recent branch that turns out to be missing
// or protected is removed from the recent list.
func (w *Workspace) UseBranch(ctx context.Context, req BranchRequest) (*config.Resolved, error) {
	repo, ok := w.Repo()
	if !ok {
		return nil, ErrNoRepo
	}
	ref := repo.Ref()

	var (
		head, base gitprovider.Branch
		resolved   *config.Resolved
		err        error
	)
	if req.Base == "" {
		head, err = w.provider.GetBranch(ctx, gitprovider.BranchRef{RepoRef: ref, Branch: req.Name})
		if err == nil && head.IsProtected {
			err = gitprovider.Errorf(gitprovider.CodeBranchPermissionViolated, "useBranch", "branch %q is protected", req.Name)
		}
		if err != nil {
			w.pruneRecent(repo, req.Name, err)
			return nil, err
		}
		if resolved, err = w.resolver.Resolve(ctx, ref, head.Name); err != nil {
			return nil, err
		}
	} else {
		base, err = w.provider.GetBranch(ctx, gitprovider.BranchRef{RepoRef: ref, Branch: req.Base})
		if err != nil {
			return nil, err
		}
		if resolved, err = w.resolver.Resolve(ctx, ref, base.Name); err != nil {
			return nil, err
		}
		head, err = w.provider.CreateBranch(ctx, gitprovider.CreateBranchInput{
			RepoRef:        ref,
			Branch:         req.Name,
			FromCommitHash: base.CommitHash,
		})
		if err != nil {
			return nil, err
		}
	}

	w.mu.Lock()
	w.branch, w.commitHash, w.cfg = head.Name, head.CommitHash, resolved.Config
	w.mu.Unlock()
	w.store.Init(resolved.Namespaces, resolved.Languages, resolved.Config.DefaultLanguage)

	w.log.Info("branch selected",
		"repo", repo.FullName, "branch", head.Name,
		"namespaces", len(resolved.Namespaces), "languages", len(resolved.Languages))

	if w.registry != nil {
		w.registry.TouchBranch(string(w.provider.Kind()), repo.FullName, head.Name, w.recent)
		w.saveRegistry()
	}
	return resolved, nil
}

func (w *Workspace) pruneRecent(repo gitprovider.Repo, branch string, err error) {
	if w.registry == nil {
		return
	}
	switch gitprovider.CodeOf(err) {
	case gitprovider.CodeBranchNotFound, gitprovider.CodeBranchPermissionViolated:
	default:
		return
	}
	if w.registry.PruneBranch(string(w.provider.Kind()), repo.FullName, branch) {
		w.log.Info("removed branch from recent list", "repo", repo.FullName, "branch", branch, "reason", gitprovider.CodeOf(err))
		w.saveRegistry()
	}
}

// SetupConfig commits cfg as the configuration file of branch.
func (w *Workspace) SetupConfig(ctx context.Context, branch string, cfg *config.RepoConfig) (gitprovider.CommitResult, error) {
	repo, ok := w.Repo()
	if !ok {
		return gitprovider.CommitResult{}, ErrNoRepo
	}
	data, err := config.Encode(cfg)
	if err != nil {
		return gitprovider.CommitResult{}, err
	}
	res, err := w.provider.CommitFiles(ctx, gitprovider.CommitInput{
		RepoRef:      repo.Ref(),
		Branch:       branch,
		Message:      SetupConfigMessage,
		FilesToWrite: map[string][]byte{config.Path: data},
	})
	if err != nil {
		return gitprovider.CommitResult{}, err
	}
	w.log.Info("configuration committed", "repo", repo.FullName, "branch", branch, "commit", res.Hash)
	return res, nil
}

// ---------------------------------------------------------------------------
// Namespaces
// ---------------------------------------------------------------------------

// SelectNamespace selects ns and, the first time, fetches its files. It
// reports whether ns is loaded on return. A fetch overtaken by another
// selection is discarded and reports false with no error.
func (w *Workspace) SelectNamespace(ctx context.Context, ns string) (bool, error) {
	needsFetch, err := w.store.Select(ns)
	if err != nil {
		return false, err
	}
	if !needsFetch {
		return w.store.Status(ns) == editor.Loaded, nil
	}

	files, err := w.fetchNamespace(ctx, ns)
	if err != nil {
		w.store.FailLoad(ns)
		return false, fmt.Errorf("loading namespace %q: %w", ns, err)
	}
	return w.store.Load(ns, files)
}

// fetchNamespace reads the file of ns in every language. A missing file is
// an empty table.
func (w *Workspace) fetchNamespace(ctx context.Context, ns string) (map[string]localefile.Table, error) {
	w.mu.Lock()
	repo, cfg, rev := w.repo, w.cfg, w.commitHash
	if rev == "" {
		rev = w.branch
	}
	w.mu.Unlock()
	if repo == nil {
		return nil, ErrNoRepo
	}
	if cfg == nil {
		return nil, ErrNoBranch
	}

	pat := cfg.SourcePattern()
	var (
		mu    sync.Mutex
		files = make(map[string]localefile.Table)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, lng := range w.store.Languages() {
		path := pat.Path(lng, ns)
		g.Go(func() error {
			data, err := w.read(gctx, repo.Ref(), rev, path)
			if errors.Is(err, gitprovider.ErrContentNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			tbl, err := localefile.Decode(cfg.FileType, data)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			mu.Lock()
			files[lng] = tbl
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// read returns the content of path at rev, through the cache. Concurrent
// reads of the same file share one request.
func (w *Workspace) read(ctx context.Context, ref gitprovider.RepoRef, rev, path string) ([]byte, error) {
	key := ref.FullName() + "@" + rev + ":" + path
	if data, ok := w.cache.Get(key); ok {
		return data, nil
	}
	v, err, _ := w.content.Do(key, func() (any, error) {
		data, err := w.provider.GetContent(ctx, gitprovider.ContentRef{RepoRef: ref, Path: path, Ref: rev})
		if err != nil {
			return nil, err
		}
		w.cache.Add(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// ---------------------------------------------------------------------------
// Saving
// ---------------------------------------------------------------------------

// Save commits the changes of the store to the selected branch. An empty
// message uses SaveMessage. On success the branch head moves to the new
// commit.
func (w *Workspace) Save(ctx context.Context, message string) (gitprovider.CommitResult, error) {
	w.mu.Lock()
	repo, branch, cfg := w.repo, w.branch, w.cfg
	w.mu.Unlock()
	if repo == nil {
		return gitprovider.CommitResult{}, ErrNoRepo
	}
	if cfg == nil {
		return gitprovider.CommitResult{}, ErrNoBranch
	}
	if message == "" {
		message = SaveMessage
	}

	res, err := w.reconciler.Save(ctx, reconcile.Request{
		Repo:    repo.Ref(),
		Branch:  branch,
		Message: message,
		Config:  cfg,
	})
	if err != nil {
		return gitprovider.CommitResult{}, err
	}

	w.mu.Lock()
	if w.branch == branch && res.Hash != "" {
		w.commitHash = res.Hash
	}
	w.mu.Unlock()
	w.log.Info("translations saved", "repo", repo.FullName, "branch", branch, "commit", res.Hash)
	return res, nil
}

// Close ends the session and clears the editor.
func (w *Workspace) Close() {
	w.mu.Lock()
	w.repo = nil
	w.branch, w.commitHash, w.cfg = "", "", nil
	w.mu.Unlock()
	w.store.Close()
	w.cache.Purge()
}
