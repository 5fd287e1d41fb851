// Package bitbucketapi implements the gitprovider contract against the
// Bitbucket Cloud 2.0 REST API.
//
// Bitbucket has no tree or git-data endpoints comparable to GitHub's, so
// trees are listed by walking the "src" directory listings page by page, and
// commits go through the multipart "src" upload, which accepts writes and
// deletions in one request.
package bitbucketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/minios-linux/i18ncms/gitprovider"
)

// DefaultBaseURL is the Bitbucket Cloud API root.
const DefaultBaseURL = "https://api.bitbucket.org/2.0"

const pageLen = 100

// Client is the Bitbucket adapter.
type Client struct {
	http    *http.Client
	baseURL string
	log     *slog.Logger

	mu   sync.Mutex
	user *account // set after the first successful lookup
}

var _ gitprovider.Provider = (*Client)(nil)

// New returns an adapter issuing requests through httpClient, which is
// expected to add authentication. An empty baseURL means DefaultBaseURL.
func New(httpClient *http.Client, baseURL string, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     log.With("provider", "bitbucket"),
	}
}

func (c *Client) Kind() gitprovider.Kind { return gitprovider.Bitbucket }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type account struct {
	UUID        string `json:"uuid"`
	Username    string `json:"username"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
}

func (a account) name() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Nickname
}

type workspace struct {
	Slug string `json:"slug"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type repository struct {
	Slug       string    `json:"slug"`
	FullName   string    `json:"full_name"`
	Workspace  workspace `json:"workspace"`
	MainBranch *struct {
		Name string `json:"name"`
	} `json:"mainbranch"`
}

type branch struct {
	Name   string `json:"name"`
	Target struct {
		Hash string `json:"hash"`
	} `json:"target"`
}

type restriction struct {
	Kind            string    `json:"kind"`
	BranchMatchKind string    `json:"branch_match_kind"`
	Pattern         string    `json:"pattern"`
	Users           []account `json:"users"`
}

type srcEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // commit_file | commit_directory
}

type commit struct {
	Hash  string `json:"hash"`
	Links struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

type page[T any] struct {
	Values []T    `json:"values"`
	Next   string `json:"next"`
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("Bitbucket API returned %d: %s", e.Status, e.Message)
}

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

// currentUser returns the authenticated account. Only a successful lookup
// is cached; failures are retried by the next call.
func (c *Client) currentUser(ctx context.Context) (account, error) {
	c.mu.Lock()
	cached := c.user
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	u, err := getJSON[account](ctx, c, c.url("user"))
	if err != nil {
		return account{}, err
	}
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
	return *u, nil
}

func (c *Client) GetCurrentUser(ctx context.Context) (gitprovider.User, error) {
	u, err := c.currentUser(ctx)
	if err != nil {
		return gitprovider.User{}, classify("getCurrentUser", err, "")
	}
	return gitprovider.User{Name: u.name(), ID: u.UUID}, nil
}

func (c *Client) GetOrganizations(ctx context.Context) ([]gitprovider.Organization, error) {
	type membership struct {
		Workspace workspace `json:"workspace"`
	}
	items, err := paginate[membership](ctx, c, c.url("user/permissions/workspaces")+"?pagelen="+fmt.Sprint(pageLen))
	if err != nil {
		return nil, classify("getOrganizations", err, "")
	}
	out := make([]gitprovider.Organization, 0, len(items))
	for _, m := range items {
		out = append(out, gitprovider.Organization{Name: m.Workspace.Slug, ID: m.Workspace.UUID})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

func (c *Client) GetRepo(ctx context.Context, ref gitprovider.RepoRef) (gitprovider.Repo, error) {
	r, err := getJSON[repository](ctx, c, c.repoURL(ref))
	if err != nil {
		return gitprovider.Repo{}, classify("getRepo", err, gitprovider.CodeRepoNotFound)
	}
	repo := toRepo(r)

	type permission struct {
		Permission string `json:"permission"`
	}
	q := url.Values{"q": {fmt.Sprintf("repository.full_name=%q", r.FullName)}}
	perms, err := paginate[permission](ctx, c, c.url("user/permissions/repositories")+"?"+q.Encode())
	if err != nil {
		return gitprovider.Repo{}, classify("getRepo", err, gitprovider.CodeRepoNotFound)
	}
	canPush := false
	for _, p := range perms {
		if p.Permission == "write" || p.Permission == "admin" {
			canPush = true
		}
	}
	repo.Permission = gitprovider.PermissionFromPush(canPush)
	return repo, nil
}

func (c *Client) CreateRepo(ctx context.Context, in gitprovider.CreateRepoInput) (gitprovider.Repo, error) {
	ws := in.Owner.Name
	if !in.Owner.IsOrg || ws == "" {
		u, err := c.currentUser(ctx)
		if err != nil {
			return gitprovider.Repo{}, classify("createRepo", err, "")
		}
		ws = u.name()
	}
	body := map[string]any{
		"scm":        "git",
		"is_private": in.Visibility == gitprovider.Private,
	}
	ref := gitprovider.RepoRef{Owner: ws, Repo: in.Name}
	r, err := sendJSON[repository](ctx, c, http.MethodPost, c.repoURL(ref), body)
	if err != nil {
		if hasMessage(err, "already exists") {
			return gitprovider.Repo{}, gitprovider.Wrap(gitprovider.CodeRepoAlreadyExist, "createRepo", err)
		}
		return gitprovider.Repo{}, classify("createRepo", err, "")
	}
	repo := toRepo(r)
	repo.Permission = gitprovider.PermissionWrite
	return repo, nil
}

func toRepo(r *repository) gitprovider.Repo {
	def := "main"
	if r.MainBranch != nil && r.MainBranch.Name != "" {
		def = r.MainBranch.Name
	}
	return gitprovider.Repo{
		Owner:         r.Workspace.Slug,
		Repo:          r.Slug,
		FullName:      r.FullName,
		DefaultBranch: def,
	}
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

// GetBranch reports a branch as protected when a push restriction matches it
// and does not list the current user.
func (c *Client) GetBranch(ctx context.Context, ref gitprovider.BranchRef) (gitprovider.Branch, error) {
	b, err := getJSON[branch](ctx, c, c.repoURL(ref.RepoRef)+"/refs/branches/"+url.PathEscape(ref.Branch))
	if err != nil {
		return gitprovider.Branch{}, classify("getBranch", err, gitprovider.CodeBranchNotFound)
	}
	restricted, err := c.pushRestricted(ctx, ref.RepoRef, ref.Branch)
	if err != nil {
		return gitprovider.Branch{}, classify("getBranch", err, gitprovider.CodeRepoNotFound)
	}
	return gitprovider.Branch{Name: b.Name, CommitHash: b.Target.Hash, IsProtected: restricted}, nil
}

func (c *Client) CreateBranch(ctx context.Context, in gitprovider.CreateBranchInput) (gitprovider.Branch, error) {
	restricted, err := c.pushRestricted(ctx, in.RepoRef, in.Branch)
	if err != nil {
		return gitprovider.Branch{}, classify("createBranch", err, gitprovider.CodeRepoNotFound)
	}
	if restricted {
		return gitprovider.Branch{}, gitprovider.Errorf(gitprovider.CodeBranchPermissionViolated,
			"createBranch", "branch %q is covered by a push restriction", in.Branch)
	}

	body := map[string]any{
		"name":   in.Branch,
		"target": map[string]string{"hash": in.FromCommitHash},
	}
	b, err := sendJSON[branch](ctx, c, http.MethodPost, c.repoURL(in.RepoRef)+"/refs/branches", body)
	if err != nil {
		if hasMessage(err, "already exists") || hasMessage(err, "BRANCH_ALREADY_EXISTS") {
			return gitprovider.Branch{}, gitprovider.Wrap(gitprovider.CodeBranchAlreadyExist, "createBranch", err)
		}
		return gitprovider.Branch{}, classify("createBranch", err, gitprovider.CodeRepoNotFound)
	}
	return gitprovider.Branch{Name: b.Name, CommitHash: b.Target.Hash}, nil
}

// pushRestricted reports whether a push restriction covers name and leaves
// the current user out. Restrictions are only readable by repository admins;
// a 403 means none can be evaluated.
func (c *Client) pushRestricted(ctx context.Context, ref gitprovider.RepoRef, name string) (bool, error) {
	rules, err := paginate[restriction](ctx, c,
		c.repoURL(ref)+"/branch-restrictions?kind=push&pagelen="+fmt.Sprint(pageLen))
	if err != nil {
		if isStatus(err, http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	if len(rules) == 0 {
		return false, nil
	}
	u, err := c.currentUser(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range rules {
		if r.Kind != "push" || r.BranchMatchKind == "branching_model" {
			continue
		}
		if !gitprovider.MatchBranch(r.Pattern, name) {
			continue
		}
		allowed := false
		for _, a := range r.Users {
			if a.UUID == u.UUID {
				allowed = true
				break
			}
		}
		if !allowed {
			return true, nil
		}
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

func (c *Client) GetContent(ctx context.Context, ref gitprovider.ContentRef) ([]byte, error) {
	rev, err := c.revision(ctx, ref.RepoRef, ref.Ref)
	if err != nil {
		return nil, classify("getContent", err, gitprovider.CodeContentNotFound)
	}
	data, err := c.getRaw(ctx, c.srcURL(ref.RepoRef, rev, ref.Path))
	if err != nil {
		return nil, classify("getContent", err, gitprovider.CodeContentNotFound)
	}
	return data, nil
}

// revision resolves branch names containing "/" to a commit hash, since the
// src endpoint cannot tell such a branch name from a path.
func (c *Client) revision(ctx context.Context, ref gitprovider.RepoRef, rev string) (string, error) {
	if !strings.Contains(rev, "/") {
		return rev, nil
	}
	b, err := getJSON[branch](ctx, c, c.repoURL(ref)+"/refs/branches/"+url.PathEscape(rev))
	if err != nil {
		return "", err
	}
	return b.Target.Hash, nil
}

func (c *Client) GetTree(ctx context.Context, in gitprovider.TreeInput) ([]string, error) {
	rev, err := c.revision(ctx, in.RepoRef, in.Branch)
	if err != nil {
		return nil, classify("getTree", err, gitprovider.CodeBranchNotFound)
	}
	var set gitprovider.PathSet
	dir := gitprovider.PrefixDir(in.PathPrefix)
	if err := c.walk(ctx, in, rev, dir, &set); err != nil {
		if dir != "" && isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, classify("getTree", err, gitprovider.CodeBranchNotFound)
	}
	return set.Paths(), nil
}

func (c *Client) walk(ctx context.Context, in gitprovider.TreeInput, rev, dir string, set *gitprovider.PathSet) error {
	u := c.srcURL(in.RepoRef, rev, dir)
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	entries, err := paginate[srcEntry](ctx, c, u+"?pagelen="+fmt.Sprint(pageLen))
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.Type {
		case "commit_file":
			if gitprovider.UnderPrefix(e.Path, in.PathPrefix) {
				set.Add(e.Path)
			}
		case "commit_directory":
			if strings.HasPrefix(in.PathPrefix, e.Path+"/") || gitprovider.UnderPrefix(e.Path+"/", in.PathPrefix) {
				if err := c.walk(ctx, in, rev, e.Path, set); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Commits
// ---------------------------------------------------------------------------

func (c *Client) CommitFiles(ctx context.Context, in gitprovider.CommitInput) (gitprovider.CommitResult, error) {
	deletes, err := gitprovider.ExistingPaths(ctx, in.FilesToDelete, func(ctx context.Context, p string) error {
		_, err := c.GetContent(ctx, gitprovider.ContentRef{RepoRef: in.RepoRef, Path: p, Ref: in.Branch})
		return err
	})
	if err != nil {
		return gitprovider.CommitResult{}, err
	}

	body, contentType, err := commitForm(in, deletes)
	if err != nil {
		return gitprovider.CommitResult{}, gitprovider.Unclassified("commitFiles", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.repoURL(in.RepoRef)+"/src", body)
	if err != nil {
		return gitprovider.CommitResult{}, gitprovider.Unclassified("commitFiles", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.do(req)
	if err != nil {
		if isStatus(err, http.StatusForbidden) {
			return gitprovider.CommitResult{}, gitprovider.Wrap(gitprovider.CodeBranchPermissionViolated, "commitFiles", err)
		}
		return gitprovider.CommitResult{}, classify("commitFiles", err, gitprovider.CodeBranchNotFound)
	}
	resp.Body.Close()

	loc := resp.Header.Get("Location")
	if loc == "" {
		return gitprovider.CommitResult{}, gitprovider.Unclassified("commitFiles", fmt.Errorf("no Location in commit response"))
	}
	created, err := getJSON[commit](ctx, c, loc)
	if err != nil {
		// The commit exists; fall back to the hash in the Location path.
		c.log.Warn("reading created commit", "location", loc, "error", err)
		return gitprovider.CommitResult{Hash: path.Base(loc)}, nil
	}

	c.log.Debug("committed", "repo", in.FullName(), "branch", in.Branch,
		"sha", created.Hash, "writes", len(in.FilesToWrite), "deletes", len(deletes))
	return gitprovider.CommitResult{URL: created.Links.HTML.Href, Hash: created.Hash}, nil
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

func (c *Client) url(p string) string { return c.baseURL + "/" + p }

func (c *Client) repoURL(ref gitprovider.RepoRef) string {
	return c.url("repositories/" + url.PathEscape(ref.Owner) + "/" + url.PathEscape(ref.Repo))
}

func (c *Client) srcURL(ref gitprovider.RepoRef, rev, p string) string {
	u := c.repoURL(ref) + "/src/" + url.PathEscape(rev) + "/"
	if p != "" {
		u += escapePath(p)
	}
	return u
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// do sends req and returns the response for 2xx statuses. Other statuses
// become *apiError with the Bitbucket error message.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return nil, &apiError{Status: resp.StatusCode, Message: errorMessage(body)}
}

func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Detail  any    `json:"detail"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return truncate(string(body), 500)
}

func (c *Client) getRaw(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}

func getJSON[T any](ctx context.Context, c *Client, u string) (*T, error) {
	data, err := c.getRaw(ctx, u)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %w (body: %s)", err, truncate(string(data), 300))
	}
	return &out, nil
}

func sendJSON[T any](ctx context.Context, c *Client, method, u string, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &out, nil
}

// paginate follows "next" links until the listing is exhausted.
func paginate[T any](ctx context.Context, c *Client, u string) ([]T, error) {
	var all []T
	for u != "" {
		p, err := getJSON[page[T]](ctx, c, u)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Values...)
		u = p.Next
	}
	return all, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func classify(op string, err error, notFound gitprovider.Code) error {
	var e *apiError
	if errors.As(err, &e) {
		switch e.Status {
		case http.StatusUnauthorized:
			return gitprovider.Wrap(gitprovider.CodeCredentialInvalid, op, err)
		case http.StatusNotFound:
			if notFound != "" {
				return gitprovider.Wrap(notFound, op, err)
			}
		}
	}
	return gitprovider.Unclassified(op, err)
}

func isStatus(err error, status int) bool {
	var e *apiError
	return errors.As(err, &e) && e.Status == status
}

func hasMessage(err error, text string) bool {
	var e *apiError
	return errors.As(err, &e) && strings.Contains(strings.ToLower(e.Message), strings.ToLower(text))
}
