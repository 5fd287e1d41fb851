// Package gitlabapi implements the gitprovider contract on top of the GitLab
// REST API (v4) using gitlab.com/gitlab-org/api/client-go.
//
// GitLab access levels are numeric; Developer (30) and above can push and
// map to write permission. Branch protection rules are globs matched against
// the requested branch name before a branch is created.
package gitlabapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/minios-linux/i18ncms/gitprovider"
)

const (
	pageSize = 100

	// placeholderToken satisfies client-go; the session transport replaces
	// the Authorization header it produces.
	placeholderToken = "session"
)

// Client is the GitLab adapter.
type Client struct {
	gl  *gitlab.Client
	log *slog.Logger
}

var _ gitprovider.Provider = (*Client)(nil)

// New returns an adapter for the GitLab instance at baseURL (empty means
// gitlab.com). httpClient is expected to set the Authorization header; the
// client-go OAuth header is overwritten by it on every request.
func New(httpClient *http.Client, baseURL string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := []gitlab.ClientOptionFunc{gitlab.WithHTTPClient(httpClient)}
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	gl, err := gitlab.NewOAuthClient(placeholderToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab client: %w", err)
	}
	return &Client{gl: gl, log: log.With("provider", "gitlab")}, nil
}

func (c *Client) Kind() gitprovider.Kind { return gitprovider.GitLab }

func projectID(ref gitprovider.RepoRef) string { return ref.Owner + "/" + ref.Repo }

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

func (c *Client) GetCurrentUser(ctx context.Context) (gitprovider.User, error) {
	u, _, err := c.gl.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return gitprovider.User{}, classify("getCurrentUser", err, "")
	}
	return gitprovider.User{Name: u.Username, ID: strconv.Itoa(u.ID)}, nil
}

func (c *Client) GetOrganizations(ctx context.Context) ([]gitprovider.Organization, error) {
	var out []gitprovider.Organization
	opt := &gitlab.ListGroupsOptions{ListOptions: gitlab.ListOptions{PerPage: pageSize, Page: 1}}
	for {
		groups, resp, err := c.gl.Groups.ListGroups(opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classify("getOrganizations", err, "")
		}
		for _, g := range groups {
			out = append(out, gitprovider.Organization{Name: g.FullPath, ID: strconv.Itoa(g.ID)})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opt.Page = resp.NextPage
	}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func (c *Client) GetRepo(ctx context.Context, ref gitprovider.RepoRef) (gitprovider.Repo, error) {
	p, _, err := c.gl.Projects.GetProject(projectID(ref), nil, gitlab.WithContext(ctx))
	if err != nil {
		return gitprovider.Repo{}, classify("getRepo", err, gitprovider.CodeRepoNotFound)
	}
	repo := toRepo(p)
	repo.Permission = gitprovider.PermissionFromPush(accessLevel(p) >= gitlab.DeveloperPermissions)
	return repo, nil
}

func (c *Client) CreateRepo(ctx context.Context, in gitprovider.CreateRepoInput) (gitprovider.Repo, error) {
	vis := gitlab.PublicVisibility
	if in.Visibility == gitprovider.Private {
		vis = gitlab.PrivateVisibility
	}
	opt := &gitlab.CreateProjectOptions{
		Path:                 gitlab.Ptr(in.Name),
		Visibility:           gitlab.Ptr(vis),
		InitializeWithReadme: gitlab.Ptr(true),
	}
	if in.Owner.IsOrg {
		id, err := strconv.Atoi(in.Owner.ID)
		if err != nil {
			return gitprovider.Repo{}, gitprovider.Unclassified("createRepo", fmt.Errorf("invalid group id %q", in.Owner.ID))
		}
		opt.NamespaceID = gitlab.Ptr(id)
	}
	p, _, err := c.gl.Projects.CreateProject(opt, gitlab.WithContext(ctx))
	if err != nil {
		if hasMessage(err, "has already been taken") {
			return gitprovider.Repo{}, gitprovider.Wrap(gitprovider.CodeRepoAlreadyExist, "createRepo", err)
		}
		return gitprovider.Repo{}, classify("createRepo", err, "")
	}
	repo := toRepo(p)
	repo.Permission = gitprovider.PermissionWrite
	return repo, nil
}

func toRepo(p *gitlab.Project) gitprovider.Repo {
	owner := ""
	if p.Namespace != nil {
		owner = p.Namespace.FullPath
	}
	branch := p.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return gitprovider.Repo{
		Owner:         owner,
		Repo:          p.Path,
		FullName:      p.PathWithNamespace,
		DefaultBranch: branch,
	}
}

// accessLevel is the higher of the project and inherited group levels.
func accessLevel(p *gitlab.Project) gitlab.AccessLevelValue {
	if p.Permissions == nil {
		return gitlab.NoPermissions
	}
	level := gitlab.NoPermissions
	if pa := p.Permissions.ProjectAccess; pa != nil && pa.AccessLevel > level {
		level = pa.AccessLevel
	}
	if ga := p.Permissions.GroupAccess; ga != nil && ga.AccessLevel > level {
		level = ga.AccessLevel
	}
	return level
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

func (c *Client) GetBranch(ctx context.Context, ref gitprovider.BranchRef) (gitprovider.Branch, error) {
	b, _, err := c.gl.Branches.GetBranch(projectID(ref.RepoRef), ref.Branch, gitlab.WithContext(ctx))
	if err != nil {
		return gitprovider.Branch{}, classify("getBranch", err, gitprovider.CodeBranchNotFound)
	}
	return toBranch(b), nil
}

func toBranch(b *gitlab.Branch) gitprovider.Branch {
	out := gitprovider.Branch{Name: b.Name, IsProtected: !b.CanPush}
	if b.Commit != nil {
		out.CommitHash = b.Commit.ID
	}
	return out
}

// CreateBranch checks protection rules first: a rule whose name glob matches
// the branch and whose push levels all exceed the user's access level makes
// the request fail without creating anything.
func (c *Client) CreateBranch(ctx context.Context, in gitprovider.CreateBranchInput) (gitprovider.Branch, error) {
	pid := projectID(in.RepoRef)

	p, _, err := c.gl.Projects.GetProject(pid, nil, gitlab.WithContext(ctx))
	if err != nil {
		return gitprovider.Branch{}, classify("createBranch", err, gitprovider.CodeRepoNotFound)
	}
	level := accessLevel(p)

	rules, err := c.protectedBranches(ctx, pid)
	if err != nil {
		return gitprovider.Branch{}, classify("createBranch", err, gitprovider.CodeRepoNotFound)
	}
	for _, r := range rules {
		if gitprovider.MatchBranch(r.Name, in.Branch) && !canPush(r, level) {
			return gitprovider.Branch{}, gitprovider.Errorf(gitprovider.CodeBranchPermissionViolated,
				"createBranch", "branch %q matches protection rule %q", in.Branch, r.Name)
		}
	}

	b, _, err := c.gl.Branches.CreateBranch(pid, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(in.Branch),
		Ref:    gitlab.Ptr(in.FromCommitHash),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if hasMessage(err, "already exists") {
			return gitprovider.Branch{}, gitprovider.Wrap(gitprovider.CodeBranchAlreadyExist, "createBranch", err)
		}
		return gitprovider.Branch{}, classify("createBranch", err, gitprovider.CodeRepoNotFound)
	}
	return toBranch(b), nil
}

func (c *Client) protectedBranches(ctx context.Context, pid string) ([]*gitlab.ProtectedBranch, error) {
	var all []*gitlab.ProtectedBranch
	opt := &gitlab.ListProtectedBranchesOptions{ListOptions: gitlab.ListOptions{PerPage: pageSize, Page: 1}}
	for {
		rules, resp, err := c.gl.ProtectedBranches.ListProtectedBranches(pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opt.Page = resp.NextPage
	}
}

// canPush reports whether a user at level may push to branches covered by
// rule. Level 0 entries mean "no one".
func canPush(rule *gitlab.ProtectedBranch, level gitlab.AccessLevelValue) bool {
	for _, pl := range rule.PushAccessLevels {
		if pl.AccessLevel > gitlab.NoPermissions && level >= pl.AccessLevel {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Files and trees
// ---------------------------------------------------------------------------

func (c *Client) GetContent(ctx context.Context, ref gitprovider.ContentRef) ([]byte, error) {
	data, _, err := c.gl.RepositoryFiles.GetRawFile(projectID(ref.RepoRef), ref.Path,
		&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(ref.Ref)}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classify("getContent", err, gitprovider.CodeContentNotFound)
	}
	return data, nil
}

func (c *Client) GetTree(ctx context.Context, in gitprovider.TreeInput) ([]string, error) {
	dir := gitprovider.PrefixDir(in.PathPrefix)
	opt := &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{PerPage: pageSize, Page: 1},
		Ref:         gitlab.Ptr(in.Branch),
		Recursive:   gitlab.Ptr(true),
	}
	if dir != "" {
		opt.Path = gitlab.Ptr(dir)
	}

	var set gitprovider.PathSet
	for {
		nodes, resp, err := c.gl.Repositories.ListTree(projectID(in.RepoRef), opt, gitlab.WithContext(ctx))
		if err != nil {
			// A missing directory is an empty listing.
			if dir != "" && isStatus(err, http.StatusNotFound) {
				return nil, nil
			}
			return nil, classify("getTree", err, gitprovider.CodeBranchNotFound)
		}
		for _, n := range nodes {
			if n.Type == "blob" && gitprovider.UnderPrefix(n.Path, in.PathPrefix) {
				set.Add(n.Path)
			}
		}
		if resp.NextPage == 0 {
			return set.Paths(), nil
		}
		opt.Page = resp.NextPage
	}
}

// ---------------------------------------------------------------------------
// Commits
// ---------------------------------------------------------------------------

// CommitFiles sends one commit with delete, create and update actions.
// GitLab needs to know whether a written file already exists, so writes are
// probed the same way deletes are.
func (c *Client) CommitFiles(ctx context.Context, in gitprovider.CommitInput) (gitprovider.CommitResult, error) {
	probe := func(ctx context.Context, p string) error {
		_, err := c.GetContent(ctx, gitprovider.ContentRef{RepoRef: in.RepoRef, Path: p, Ref: in.Branch})
		return err
	}
	deletes, err := gitprovider.ExistingPaths(ctx, in.FilesToDelete, probe)
	if err != nil {
		return gitprovider.CommitResult{}, err
	}
	writes := gitprovider.SortedPaths(in.FilesToWrite)
	existing, err := gitprovider.ExistingPaths(ctx, writes, probe)
	if err != nil {
		return gitprovider.CommitResult{}, err
	}
	update := make(map[string]bool, len(existing))
	for _, p := range existing {
		update[p] = true
	}

	actions := make([]*gitlab.CommitActionOptions, 0, len(deletes)+len(writes))
	for _, p := range deletes {
		actions = append(actions, &gitlab.CommitActionOptions{
			Action:   gitlab.Ptr(gitlab.FileDelete),
			FilePath: gitlab.Ptr(p),
		})
	}
	for _, p := range writes {
		action := gitlab.FileCreate
		if update[p] {
			action = gitlab.FileUpdate
		}
		actions = append(actions, &gitlab.CommitActionOptions{
			Action:   gitlab.Ptr(action),
			FilePath: gitlab.Ptr(p),
			Content:  gitlab.Ptr(string(in.FilesToWrite[p])),
		})
	}

	commit, _, err := c.gl.Commits.CreateCommit(projectID(in.RepoRef), &gitlab.CreateCommitOptions{
		Branch:        gitlab.Ptr(in.Branch),
		CommitMessage: gitlab.Ptr(in.Message),
		Actions:       actions,
	}, gitlab.WithContext(ctx))
	if err != nil {
		if isStatus(err, http.StatusForbidden) {
			return gitprovider.CommitResult{}, gitprovider.Wrap(gitprovider.CodeBranchPermissionViolated, "commitFiles", err)
		}
		return gitprovider.CommitResult{}, classify("commitFiles", err, gitprovider.CodeBranchNotFound)
	}

	c.log.Debug("committed", "project", in.FullName(), "branch", in.Branch,
		"sha", commit.ID, "writes", len(writes), "deletes", len(deletes))
	return gitprovider.CommitResult{URL: commit.WebURL, Hash: commit.ID}, nil
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func classify(op string, err error, notFound gitprovider.Code) error {
	switch statusOf(err) {
	case http.StatusUnauthorized:
		return gitprovider.Wrap(gitprovider.CodeCredentialInvalid, op, err)
	case http.StatusNotFound:
		if notFound != "" {
			return gitprovider.Wrap(notFound, op, err)
		}
	}
	return gitprovider.Unclassified(op, err)
}

// statusOf returns the HTTP status behind err, or 0. client-go reports every
// 404 as the bare ErrNotFound rather than an ErrorResponse.
func statusOf(err error) int {
	if errors.Is(err, gitlab.ErrNotFound) {
		return http.StatusNotFound
	}
	var ge *gitlab.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		return ge.Response.StatusCode
	}
	return 0
}

func isStatus(err error, status int) bool {
	return statusOf(err) == status
}

func hasMessage(err error, text string) bool {
	var ge *gitlab.ErrorResponse
	return errors.As(err, &ge) && strings.Contains(ge.Message, text)
}
