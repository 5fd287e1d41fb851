package githubapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/logging"
)

var site = gitprovider.RepoRef{Owner: "acme", Repo: "site"}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
}

func fileJSON(content string) string {
	return fmt.Sprintf(`{"type":"file","encoding":"base64","sha":"b1","content":%q}`,
		base64.StdEncoding.EncodeToString([]byte(content)))
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(srv.Client(), srv.URL, logging.Discard())
	require.NoError(t, err)
	return c
}

func branchJSON(name, sha string, protected bool) string {
	return fmt.Sprintf(`{"name":%q,"commit":{"sha":%q,"commit":{"tree":{"sha":"t-%s"}}},"protected":%v}`, name, sha, sha, protected)
}

func TestGetCurrentUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"login":"octo","id":7}`)
	})
	c := newTestClient(t, mux)

	u, err := c.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gitprovider.User{Name: "octo", ID: "7"}, u)
}

func TestCredentialInvalid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Bad credentials"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.GetCurrentUser(context.Background())
	require.ErrorIs(t, err, gitprovider.ErrCredentialInvalid)
}

func TestGetRepo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/site", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"name":"site","full_name":"acme/site","owner":{"login":"acme"},
			"default_branch":"develop","permissions":{"push":false,"pull":true}}`)
	})
	mux.HandleFunc("GET /repos/acme/missing", notFound)
	c := newTestClient(t, mux)

	repo, err := c.GetRepo(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, "acme/site", repo.FullName)
	assert.Equal(t, "develop", repo.DefaultBranch)
	assert.Equal(t, gitprovider.PermissionRead, repo.Permission)

	_, err = c.GetRepo(context.Background(), gitprovider.RepoRef{Owner: "acme", Repo: "missing"})
	require.ErrorIs(t, err, gitprovider.ErrRepoNotFound)
}

func TestGetBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/site/branches/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, branchJSON("main", "c1", true))
	})
	mux.HandleFunc("GET /repos/acme/site/branches/gone", notFound)
	mux.HandleFunc("GET /repos/acme/site/branches/secret", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Bad credentials"}`)
	})
	c := newTestClient(t, mux)

	b, err := c.GetBranch(context.Background(), gitprovider.BranchRef{RepoRef: site, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, gitprovider.Branch{Name: "main", CommitHash: "c1", TreeHash: "t-c1", IsProtected: true}, b)

	_, err = c.GetBranch(context.Background(), gitprovider.BranchRef{RepoRef: site, Branch: "gone"})
	require.ErrorIs(t, err, gitprovider.ErrBranchNotFound)
	assert.True(t, gitprovider.IsRecoverable(err))

	_, err = c.GetBranch(context.Background(), gitprovider.BranchRef{RepoRef: site, Branch: "secret"})
	require.ErrorIs(t, err, gitprovider.ErrCredentialInvalid)
}

func TestClassifyResponse(t *testing.T) {
	resp := func(status int) *github.Response {
		return &github.Response{Response: &http.Response{StatusCode: status}}
	}
	plain := fmt.Errorf("unexpected status code: 404 Not Found")
	tests := []struct {
		resp *github.Response
		want gitprovider.Code
	}{
		{resp: resp(http.StatusNotFound), want: gitprovider.CodeBranchNotFound},
		{resp: resp(http.StatusUnauthorized), want: gitprovider.CodeCredentialInvalid},
		{resp: resp(http.StatusBadGateway), want: gitprovider.CodeUnclassified},
		{resp: nil, want: gitprovider.CodeUnclassified},
	}
	for _, tc := range tests {
		got := gitprovider.CodeOf(classifyResponse("getBranch", tc.resp, plain, gitprovider.CodeBranchNotFound))
		if got != tc.want {
			t.Fatalf("classifyResponse(%v) = %s, want %s", tc.resp, got, tc.want)
		}
	}
}

func TestCreateBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/site/rules/branches/feature", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})
	mux.HandleFunc("GET /repos/acme/site/rules/branches/release", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"type":"creation"}]`)
	})
	var created map[string]any
	mux.HandleFunc("POST /repos/acme/site/git/refs", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&created)
		if created["ref"] == "refs/heads/dup" {
			writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Reference already exists"}`)
			return
		}
		writeJSON(w, http.StatusCreated, `{"ref":"refs/heads/feature","object":{"sha":"c1"}}`)
	})
	mux.HandleFunc("GET /repos/acme/site/rules/branches/dup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})
	mux.HandleFunc("GET /repos/acme/site/branches/feature", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, branchJSON("feature", "c1", false))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	b, err := c.CreateBranch(ctx, gitprovider.CreateBranchInput{RepoRef: site, Branch: "feature", FromCommitHash: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "feature", b.Name)
	assert.Equal(t, "c1", created["sha"])

	_, err = c.CreateBranch(ctx, gitprovider.CreateBranchInput{RepoRef: site, Branch: "release", FromCommitHash: "c1"})
	require.ErrorIs(t, err, gitprovider.ErrBranchPermissionViolated)

	_, err = c.CreateBranch(ctx, gitprovider.CreateBranchInput{RepoRef: site, Branch: "dup", FromCommitHash: "c1"})
	require.ErrorIs(t, err, gitprovider.ErrBranchAlreadyExist)
}

func TestGetContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/site/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("path") != "locales/en/common.json" || r.URL.Query().Get("ref") != "main" {
			notFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, fileJSON(`{"title":"Hello"}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	data, err := c.GetContent(ctx, gitprovider.ContentRef{RepoRef: site, Path: "locales/en/common.json", Ref: "main"})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Hello"}`, string(data))

	_, err = c.GetContent(ctx, gitprovider.ContentRef{RepoRef: site, Path: "locales/fr/common.json", Ref: "main"})
	require.ErrorIs(t, err, gitprovider.ErrContentNotFound)
}

func TestGetTree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/site/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		writeJSON(w, http.StatusOK, `{"sha":"t1","truncated":false,"tree":[
			{"path":"README.md","type":"blob"},
			{"path":"locales","type":"tree"},
			{"path":"locales/en/home.json","type":"blob"},
			{"path":"locales/en/common.json","type":"blob"},
			{"path":"locales/fr/common.json","type":"blob"}]}`)
	})
	c := newTestClient(t, mux)

	paths, err := c.GetTree(context.Background(), gitprovider.TreeInput{RepoRef: site, Branch: "main", PathPrefix: "locales/en/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"locales/en/home.json", "locales/en/common.json"}, paths)
}

func TestGetTree_TruncatedWalksDirectories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/site/git/trees/{sha}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("sha") {
		case "main":
			writeJSON(w, http.StatusOK, `{"sha":"root","truncated":true,"tree":[]}`)
		case "root":
			writeJSON(w, http.StatusOK, `{"sha":"root","tree":[
				{"path":"src","type":"tree","sha":"src"},
				{"path":"locales","type":"tree","sha":"loc"}]}`)
		case "loc":
			writeJSON(w, http.StatusOK, `{"sha":"loc","tree":[{"path":"en","type":"tree","sha":"en"}]}`)
		case "en":
			writeJSON(w, http.StatusOK, `{"sha":"en","tree":[{"path":"common.json","type":"blob","sha":"b"}]}`)
		default:
			t.Errorf("unexpected tree %s", r.PathValue("sha"))
			notFound(w, r)
		}
	})
	c := newTestClient(t, mux)

	paths, err := c.GetTree(context.Background(), gitprovider.TreeInput{RepoRef: site, Branch: "main", PathPrefix: "locales/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"locales/en/common.json"}, paths)
}

// commitServer emulates the git data API for CommitFiles.
type commitServer struct {
	mu        sync.Mutex
	tree      map[string]any
	commit    map[string]any
	protected bool
}

func (s *commitServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/site/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("path") == "locales/fr/old.json" {
			writeJSON(w, http.StatusOK, fileJSON("{}"))
			return
		}
		notFound(w, r)
	})
	mux.HandleFunc("GET /repos/acme/site/branches/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, branchJSON("main", "c1", false))
	})
	mux.HandleFunc("POST /repos/acme/site/git/trees", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		json.NewDecoder(r.Body).Decode(&s.tree)
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, `{"sha":"t2"}`)
	})
	mux.HandleFunc("POST /repos/acme/site/git/commits", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		json.NewDecoder(r.Body).Decode(&s.commit)
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, `{"sha":"c2","html_url":"https://github.test/acme/site/commit/c2"}`)
	})
	mux.HandleFunc("PATCH /repos/acme/site/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		if s.protected {
			writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Protected branch update failed for refs/heads/main."}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"ref":"refs/heads/main","object":{"sha":"c2"}}`)
	})
	return mux
}

func TestCommitFiles(t *testing.T) {
	s := &commitServer{}
	c := newTestClient(t, s.mux())

	res, err := c.CommitFiles(context.Background(), gitprovider.CommitInput{
		RepoRef: site,
		Branch:  "main",
		Message: "Update translations",
		FilesToWrite: map[string][]byte{
			"locales/fr/common.json": []byte(`{"title":"Bonjour"}`),
			"locales/en/common.json": []byte(`{"title":"Hello"}`),
		},
		FilesToDelete: []string{"locales/fr/old.json", "locales/fr/never-existed.json"},
	})
	require.NoError(t, err)
	assert.Equal(t, gitprovider.CommitResult{URL: "https://github.test/acme/site/commit/c2", Hash: "c2"}, res)

	assert.Equal(t, "t-c1", s.tree["base_tree"])
	entries := s.tree["tree"].([]any)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.(map[string]any)["path"].(string))
	}
	assert.Equal(t, []string{"locales/en/common.json", "locales/fr/common.json", "locales/fr/old.json"}, paths)

	assert.Equal(t, "Update translations", s.commit["message"])
	assert.Equal(t, "t2", s.commit["tree"])
	assert.Equal(t, []any{"c1"}, s.commit["parents"])
}

func TestCommitFiles_ProtectedBranch(t *testing.T) {
	s := &commitServer{protected: true}
	c := newTestClient(t, s.mux())

	_, err := c.CommitFiles(context.Background(), gitprovider.CommitInput{
		RepoRef:      site,
		Branch:       "main",
		Message:      "msg",
		FilesToWrite: map[string][]byte{"a.json": []byte("{}")},
	})
	require.ErrorIs(t, err, gitprovider.ErrBranchPermissionViolated)
}
