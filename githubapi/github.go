// Package githubapi implements the gitprovider contract on top of the GitHub
// REST API using google/go-github.
//
// Permissions are taken from the repository's "push" flag. Commits are built
// through the git data API (tree, commit, ref update) so that any number of
// writes and deletes land as a single commit.
package githubapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/minios-linux/i18ncms/gitprovider"
)

const (
	pageSize = 100
	fileMode = "100644"
)

// Client is the GitHub adapter.
type Client struct {
	gh  *github.Client
	log *slog.Logger
}

var _ gitprovider.Provider = (*Client)(nil)

// New returns an adapter issuing requests through httpClient, which is
// expected to add authentication. baseURL overrides the public API endpoint
// (GitHub Enterprise, tests); empty keeps the default.
func New(httpClient *http.Client, baseURL string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	gh := github.NewClient(httpClient)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub API URL: %w", err)
		}
		gh.BaseURL = u
	}
	return &Client{gh: gh, log: log.With("provider", "github")}, nil
}

func (c *Client) Kind() gitprovider.Kind { return gitprovider.GitHub }

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

func (c *Client) GetCurrentUser(ctx context.Context) (gitprovider.User, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return gitprovider.User{}, classify("getCurrentUser", err, "")
	}
	return gitprovider.User{Name: u.GetLogin(), ID: strconv.FormatInt(u.GetID(), 10)}, nil
}

func (c *Client) GetOrganizations(ctx context.Context) ([]gitprovider.Organization, error) {
	var out []gitprovider.Organization
	opts := &github.ListOptions{PerPage: pageSize}
	for {
		orgs, resp, err := c.gh.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, classify("getOrganizations", err, "")
		}
		for _, o := range orgs {
			out = append(out, gitprovider.Organization{
				Name: o.GetLogin(),
				ID:   strconv.FormatInt(o.GetID(), 10),
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

func (c *Client) GetRepo(ctx context.Context, ref gitprovider.RepoRef) (gitprovider.Repo, error) {
	r, _, err := c.gh.Repositories.Get(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return gitprovider.Repo{}, classify("getRepo", err, gitprovider.CodeRepoNotFound)
	}
	repo := toRepo(r)
	repo.Permission = gitprovider.PermissionFromPush(r.Permissions["push"])
	return repo, nil
}

func (c *Client) CreateRepo(ctx context.Context, in gitprovider.CreateRepoInput) (gitprovider.Repo, error) {
	org := ""
	if in.Owner.IsOrg {
		org = in.Owner.Name
	}
	r, _, err := c.gh.Repositories.Create(ctx, org, &github.Repository{
		Name:     github.String(in.Name),
		Private:  github.Bool(in.Visibility == gitprovider.Private),
		AutoInit: github.Bool(true),
	})
	if err != nil {
		if isUnprocessable(err, "already exists") {
			return gitprovider.Repo{}, gitprovider.Wrap(gitprovider.CodeRepoAlreadyExist, "createRepo", err)
		}
		return gitprovider.Repo{}, classify("createRepo", err, "")
	}
	repo := toRepo(r)
	repo.Permission = gitprovider.PermissionWrite
	return repo, nil
}

func toRepo(r *github.Repository) gitprovider.Repo {
	branch := r.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	return gitprovider.Repo{
		Owner:         r.GetOwner().GetLogin(),
		Repo:          r.GetName(),
		FullName:      r.GetFullName(),
		DefaultBranch: branch,
	}
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

func (c *Client) GetBranch(ctx context.Context, ref gitprovider.BranchRef) (gitprovider.Branch, error) {
	b, resp, err := c.gh.Repositories.GetBranch(ctx, ref.Owner, ref.Repo, ref.Branch, 1)
	if err != nil {
		return gitprovider.Branch{}, classifyResponse("getBranch", resp, err, gitprovider.CodeBranchNotFound)
	}
	return gitprovider.Branch{
		Name:        b.GetName(),
		CommitHash:  b.GetCommit().GetSHA(),
		TreeHash:    b.GetCommit().GetCommit().GetTree().GetSHA(),
		IsProtected: b.GetProtected(),
	}, nil
}

// CreateBranch refuses names covered by a ruleset that restricts branch
// creation before touching refs.
func (c *Client) CreateBranch(ctx context.Context, in gitprovider.CreateBranchInput) (gitprovider.Branch, error) {
	rules, _, err := c.gh.Repositories.GetRulesForBranch(ctx, in.Owner, in.Repo, in.Branch)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return gitprovider.Branch{}, classify("createBranch", err, gitprovider.CodeRepoNotFound)
	}
	for _, r := range rules {
		if r.Type == "creation" {
			return gitprovider.Branch{}, gitprovider.Errorf(gitprovider.CodeBranchPermissionViolated,
				"createBranch", "branch %q is restricted by a repository rule", in.Branch)
		}
	}

	_, _, err = c.gh.Git.CreateRef(ctx, in.Owner, in.Repo, &github.Reference{
		Ref:    github.String("refs/heads/" + in.Branch),
		Object: &github.GitObject{SHA: github.String(in.FromCommitHash)},
	})
	if err != nil {
		if isUnprocessable(err, "already exists") {
			return gitprovider.Branch{}, gitprovider.Wrap(gitprovider.CodeBranchAlreadyExist, "createBranch", err)
		}
		return gitprovider.Branch{}, classify("createBranch", err, gitprovider.CodeRepoNotFound)
	}
	return c.GetBranch(ctx, gitprovider.BranchRef{RepoRef: in.RepoRef, Branch: in.Branch})
}

// ---------------------------------------------------------------------------
// Content and trees
// ---------------------------------------------------------------------------

func (c *Client) GetContent(ctx context.Context, ref gitprovider.ContentRef) ([]byte, error) {
	fc, _, _, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Repo, ref.Path,
		&github.RepositoryContentGetOptions{Ref: ref.Ref})
	if err != nil {
		return nil, classify("getContent", err, gitprovider.CodeContentNotFound)
	}
	if fc == nil {
		return nil, gitprovider.Errorf(gitprovider.CodeContentNotFound, "getContent", "%s is a directory", ref.Path)
	}
	// Files over 1MB come back without inline content.
	if fc.GetEncoding() == "none" {
		data, _, err := c.gh.Git.GetBlobRaw(ctx, ref.Owner, ref.Repo, fc.GetSHA())
		if err != nil {
			return nil, classify("getContent", err, gitprovider.CodeContentNotFound)
		}
		return data, nil
	}
	s, err := fc.GetContent()
	if err != nil {
		return nil, gitprovider.Unclassified("getContent", fmt.Errorf("decoding %s: %w", ref.Path, err))
	}
	return []byte(s), nil
}

// GetTree lists blob paths under the prefix. The recursive listing is used
// when GitHub returns it whole; a truncated listing falls back to walking
// the directories that can contain the prefix.
func (c *Client) GetTree(ctx context.Context, in gitprovider.TreeInput) ([]string, error) {
	tree, _, err := c.gh.Git.GetTree(ctx, in.Owner, in.Repo, in.Branch, true)
	if err != nil {
		return nil, classify("getTree", err, gitprovider.CodeBranchNotFound)
	}
	var set gitprovider.PathSet
	if !tree.GetTruncated() {
		for _, e := range tree.Entries {
			if e.GetType() == "blob" && gitprovider.UnderPrefix(e.GetPath(), in.PathPrefix) {
				set.Add(e.GetPath())
			}
		}
		return set.Paths(), nil
	}

	c.log.Debug("recursive tree truncated, walking directories", "repo", in.FullName(), "prefix", in.PathPrefix)
	if err := c.walkTree(ctx, in, tree.GetSHA(), "", &set); err != nil {
		return nil, err
	}
	return set.Paths(), nil
}

func (c *Client) walkTree(ctx context.Context, in gitprovider.TreeInput, sha, dir string, set *gitprovider.PathSet) error {
	tree, _, err := c.gh.Git.GetTree(ctx, in.Owner, in.Repo, sha, false)
	if err != nil {
		return classify("getTree", err, gitprovider.CodeBranchNotFound)
	}
	for _, e := range tree.Entries {
		p := path.Join(dir, e.GetPath())
		switch e.GetType() {
		case "blob":
			if gitprovider.UnderPrefix(p, in.PathPrefix) {
				set.Add(p)
			}
		case "tree":
			if strings.HasPrefix(in.PathPrefix, p+"/") || gitprovider.UnderPrefix(p+"/", in.PathPrefix) {
				if err := c.walkTree(ctx, in, e.GetSHA(), p, set); err != nil {
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

	head, err := c.GetBranch(ctx, gitprovider.BranchRef{RepoRef: in.RepoRef, Branch: in.Branch})
	if err != nil {
		return gitprovider.CommitResult{}, err
	}

	entries := make([]*github.TreeEntry, 0, len(in.FilesToWrite)+len(deletes))
	for _, p := range gitprovider.SortedPaths(in.FilesToWrite) {
		entries = append(entries, &github.TreeEntry{
			Path:    github.String(p),
			Mode:    github.String(fileMode),
			Type:    github.String("blob"),
			Content: github.String(string(in.FilesToWrite[p])),
		})
	}
	// An entry with neither SHA nor content removes the path.
	for _, p := range deletes {
		entries = append(entries, &github.TreeEntry{
			Path: github.String(p),
			Mode: github.String(fileMode),
			Type: github.String("blob"),
		})
	}

	tree, _, err := c.gh.Git.CreateTree(ctx, in.Owner, in.Repo, head.TreeHash, entries)
	if err != nil {
		return gitprovider.CommitResult{}, classify("commitFiles", err, gitprovider.CodeBranchNotFound)
	}

	commit, err := c.createCommit(ctx, in.RepoRef, in.Message, tree.GetSHA(), head.CommitHash)
	if err != nil {
		return gitprovider.CommitResult{}, classify("commitFiles", err, gitprovider.CodeBranchNotFound)
	}

	_, _, err = c.gh.Git.UpdateRef(ctx, in.Owner, in.Repo, &github.Reference{
		Ref:    github.String("refs/heads/" + in.Branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		if isProtectionError(err) {
			return gitprovider.CommitResult{}, gitprovider.Wrap(gitprovider.CodeBranchPermissionViolated, "commitFiles", err)
		}
		return gitprovider.CommitResult{}, classify("commitFiles", err, gitprovider.CodeBranchNotFound)
	}

	c.log.Debug("committed", "repo", in.FullName(), "branch", in.Branch,
		"sha", commit.GetSHA(), "writes", len(in.FilesToWrite), "deletes", len(deletes))
	return gitprovider.CommitResult{URL: commit.GetHTMLURL(), Hash: commit.GetSHA()}, nil
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

func (c *Client) createCommit(ctx context.Context, ref gitprovider.RepoRef, message, tree, parent string) (*github.Commit, error) {
	u := fmt.Sprintf("repos/%s/%s/git/commits", ref.Owner, ref.Repo)
	req, err := c.gh.NewRequest(http.MethodPost, u, &createCommitRequest{
		Message: message,
		Tree:    tree,
		Parents: []string{parent},
	})
	if err != nil {
		return nil, err
	}
	commit := new(github.Commit)
	if _, err := c.gh.Do(ctx, req, commit); err != nil {
		return nil, err
	}
	return commit, nil
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// classify maps a go-github error onto the taxonomy. notFound is the code a
// 404 means for the calling operation; empty leaves 404s unclassified.
func classify(op string, err error, notFound gitprovider.Code) error {
	var ge *github.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		return classifyStatus(op, ge.Response.StatusCode, err, notFound)
	}
	return gitprovider.Unclassified(op, err)
}

// classifyResponse also reads the status from resp. Calls that follow
// redirects, like GetBranch, report a failed status as a plain error.
func classifyResponse(op string, resp *github.Response, err error, notFound gitprovider.Code) error {
	var ge *github.ErrorResponse
	if errors.As(err, &ge) || resp == nil || resp.Response == nil {
		return classify(op, err, notFound)
	}
	return classifyStatus(op, resp.StatusCode, err, notFound)
}

func classifyStatus(op string, status int, err error, notFound gitprovider.Code) error {
	switch status {
	case http.StatusUnauthorized:
		return gitprovider.Wrap(gitprovider.CodeCredentialInvalid, op, err)
	case http.StatusNotFound:
		if notFound != "" {
			return gitprovider.Wrap(notFound, op, err)
		}
	}
	return gitprovider.Unclassified(op, err)
}

func isStatus(err error, status int) bool {
	var ge *github.ErrorResponse
	return errors.As(err, &ge) && ge.Response != nil && ge.Response.StatusCode == status
}

// isUnprocessable reports a 422 whose message or field errors mention text.
func isUnprocessable(err error, text string) bool {
	var ge *github.ErrorResponse
	if !errors.As(err, &ge) || ge.Response == nil || ge.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	if strings.Contains(ge.Message, text) {
		return true
	}
	for _, e := range ge.Errors {
		if strings.Contains(e.Message, text) {
			return true
		}
	}
	return false
}

func isProtectionError(err error) bool {
	var ge *github.ErrorResponse
	if !errors.As(err, &ge) || ge.Response == nil {
		return false
	}
	switch ge.Response.StatusCode {
	case http.StatusForbidden, http.StatusUnprocessableEntity:
		return strings.Contains(strings.ToLower(ge.Message), "protected")
	}
	return false
}
