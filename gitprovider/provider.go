// Package gitprovider defines the capability contract shared by the GitHub,
// GitLab and Bitbucket adapters, and the normalized error taxonomy they
// report through.
//
// Every adapter implements Provider. Higher layers (config resolution, the
// editing workspace, the save reconciler) depend on this contract only and
// never branch on which backend is in use.
package gitprovider

import "context"

// Kind identifies a provider backend as stored in the session.
type Kind string

const (
	GitHub    Kind = "github"
	GitLab    Kind = "gitlab"
	Bitbucket Kind = "bitbucket"
)

// ParseKind validates a stored provider name.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case GitHub, GitLab, Bitbucket:
		return k, true
	}
	return "", false
}

// Permission is the binary access level every backend is mapped onto.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// PermissionFromPush maps a backend push capability onto Permission.
func PermissionFromPush(canPush bool) Permission {
	if canPush {
		return PermissionWrite
	}
	return PermissionRead
}

// Visibility of a newly created repository.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

type User struct {
	Name string
	ID   string
}

type Organization struct {
	Name string
	ID   string
}

// RepoRef addresses a repository.
type RepoRef struct {
	Owner string
	Repo  string
}

func (r RepoRef) FullName() string { return r.Owner + "/" + r.Repo }

// Repo describes a repository as seen by the current user.
type Repo struct {
	Owner         string
	Repo          string
	FullName      string
	DefaultBranch string
	Permission    Permission
}

// Ref returns the address of r.
func (r Repo) Ref() RepoRef { return RepoRef{Owner: r.Owner, Repo: r.Repo} }

// Owner is the account or organization a repository is created under.
// A zero Owner (or one with IsOrg false) means the current user.
type Owner struct {
	Name  string
	ID    string
	IsOrg bool
}

type CreateRepoInput struct {
	Name       string
	Visibility Visibility
	Owner      Owner
}

// Branch is the head of a branch. TreeHash may be empty for backends that do
// not expose the root tree of a commit.
type Branch struct {
	Name        string
	CommitHash  string
	TreeHash    string
	IsProtected bool
}

type BranchRef struct {
	RepoRef
	Branch string
}

type CreateBranchInput struct {
	RepoRef
	Branch         string
	FromCommitHash string
}

type ContentRef struct {
	RepoRef
	Path string
	Ref  string
}

type TreeInput struct {
	RepoRef
	Branch     string
	PathPrefix string
}

// CommitInput describes a single atomic commit. FilesToWrite maps a path to
// its full new content.
type CommitInput struct {
	RepoRef
	Branch        string
	Message       string
	FilesToWrite  map[string][]byte
	FilesToDelete []string
}

type CommitResult struct {
	URL  string
	Hash string
}

// Provider is the capability contract implemented by each backend adapter.
// Failures are reported as *Error values (see errors.go).
type Provider interface {
	Kind() Kind
	GetCurrentUser(ctx context.Context) (User, error)
	GetOrganizations(ctx context.Context) ([]Organization, error)
	GetRepo(ctx context.Context, ref RepoRef) (Repo, error)
	CreateRepo(ctx context.Context, in CreateRepoInput) (Repo, error)
	GetBranch(ctx context.Context, ref BranchRef) (Branch, error)
	CreateBranch(ctx context.Context, in CreateBranchInput) (Branch, error)
	GetContent(ctx context.Context, ref ContentRef) ([]byte, error)
	GetTree(ctx context.Context, in TreeInput) ([]string, error)
	CommitFiles(ctx context.Context, in CommitInput) (CommitResult, error)
}
