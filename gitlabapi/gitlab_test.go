package gitlabapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/logging"
)

var site = gitprovider.RepoRef{Owner: "acme", Repo: "site"}

const projectPath = "/api/v4/projects/acme%2Fsite"

// routes dispatches on method and escaped path, since project ids and file
// paths carry encoded slashes.
type routes map[string]http.HandlerFunc

func (rt routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := rt[r.Method+" "+r.URL.EscapedPath()]; ok {
		h(w, r)
		return
	}
	reply(w, http.StatusNotFound, `{"message":"404 Not Found"}`)
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { reply(w, status, body) }
}

func newTestClient(t *testing.T, rt routes) *Client {
	t.Helper()
	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)
	c, err := New(srv.Client(), srv.URL, logging.Discard())
	require.NoError(t, err)
	return c
}

func projectJSON(level int) string {
	return `{"path":"site","path_with_namespace":"acme/site","namespace":{"full_path":"acme"},
		"default_branch":"main","permissions":{"project_access":{"access_level":` + itoa(level) + `}}}`
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestGetCurrentUser(t *testing.T) {
	c := newTestClient(t, routes{
		"GET /api/v4/user": respond(http.StatusOK, `{"id":42,"username":"jdoe"}`),
	})
	u, err := c.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gitprovider.User{Name: "jdoe", ID: "42"}, u)
}

func TestCredentialInvalid(t *testing.T) {
	c := newTestClient(t, routes{
		"GET /api/v4/user": respond(http.StatusUnauthorized, `{"message":"401 Unauthorized"}`),
	})
	_, err := c.GetCurrentUser(context.Background())
	require.ErrorIs(t, err, gitprovider.ErrCredentialInvalid)
}

func TestGetRepo_AccessLevels(t *testing.T) {
	tests := []struct {
		level int
		want  gitprovider.Permission
	}{
		{level: 20, want: gitprovider.PermissionRead},
		{level: 30, want: gitprovider.PermissionWrite},
		{level: 50, want: gitprovider.PermissionWrite},
	}
	for _, tc := range tests {
		c := newTestClient(t, routes{"GET " + projectPath: respond(http.StatusOK, projectJSON(tc.level))})
		repo, err := c.GetRepo(context.Background(), site)
		require.NoError(t, err)
		assert.Equal(t, "acme/site", repo.FullName)
		assert.Equal(t, "acme", repo.Owner)
		assert.Equal(t, tc.want, repo.Permission, "access level %d", tc.level)
	}
}

func TestGetRepo_NotFound(t *testing.T) {
	c := newTestClient(t, routes{})
	_, err := c.GetRepo(context.Background(), site)
	require.ErrorIs(t, err, gitprovider.ErrRepoNotFound)
}

func TestGetBranch(t *testing.T) {
	c := newTestClient(t, routes{
		"GET " + projectPath + "/repository/branches/main": respond(http.StatusOK,
			`{"name":"main","can_push":false,"commit":{"id":"c1"}}`),
	})
	b, err := c.GetBranch(context.Background(), gitprovider.BranchRef{RepoRef: site, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, gitprovider.Branch{Name: "main", CommitHash: "c1", IsProtected: true}, b)

	_, err = c.GetBranch(context.Background(), gitprovider.BranchRef{RepoRef: site, Branch: "gone"})
	require.ErrorIs(t, err, gitprovider.ErrBranchNotFound)
}

func TestCreateBranch(t *testing.T) {
	var mu sync.Mutex
	var created []string
	c := newTestClient(t, routes{
		"GET " + projectPath: respond(http.StatusOK, projectJSON(30)),
		"GET " + projectPath + "/protected_branches": respond(http.StatusOK,
			`[{"name":"release-*","push_access_levels":[{"access_level":40}]},
			  {"name":"dev-*","push_access_levels":[{"access_level":30}]}]`),
		"POST " + projectPath + "/repository/branches": func(w http.ResponseWriter, r *http.Request) {
			name := r.URL.Query().Get("branch")
			if name == "" {
				var body struct{ Branch string }
				json.NewDecoder(r.Body).Decode(&body)
				name = body.Branch
			}
			mu.Lock()
			created = append(created, name)
			mu.Unlock()
			if name == "dup" {
				reply(w, http.StatusBadRequest, `{"message":"Branch already exists"}`)
				return
			}
			reply(w, http.StatusCreated, `{"name":"`+name+`","can_push":true,"commit":{"id":"c1"}}`)
		},
	})
	ctx := context.Background()

	b, err := c.CreateBranch(ctx, gitprovider.CreateBranchInput{RepoRef: site, Branch: "dev-fr", FromCommitHash: "c1"})
	require.NoError(t, err)
	assert.Equal(t, gitprovider.Branch{Name: "dev-fr", CommitHash: "c1"}, b)

	_, err = c.CreateBranch(ctx, gitprovider.CreateBranchInput{RepoRef: site, Branch: "release-2", FromCommitHash: "c1"})
	require.ErrorIs(t, err, gitprovider.ErrBranchPermissionViolated)

	_, err = c.CreateBranch(ctx, gitprovider.CreateBranchInput{RepoRef: site, Branch: "dup", FromCommitHash: "c1"})
	require.ErrorIs(t, err, gitprovider.ErrBranchAlreadyExist)

	assert.Equal(t, []string{"dev-fr", "dup"}, created)
}

func TestGetContent(t *testing.T) {
	c := newTestClient(t, routes{
		"GET " + projectPath + "/repository/files/locales%2Fen%2Fcommon.json/raw": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			io.WriteString(w, `{"title":"Hello"}`)
		},
	})
	ctx := context.Background()

	data, err := c.GetContent(ctx, gitprovider.ContentRef{RepoRef: site, Path: "locales/en/common.json", Ref: "main"})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Hello"}`, string(data))

	_, err = c.GetContent(ctx, gitprovider.ContentRef{RepoRef: site, Path: "locales/de/common.json", Ref: "main"})
	require.ErrorIs(t, err, gitprovider.ErrContentNotFound)
}

func TestGetTree(t *testing.T) {
	c := newTestClient(t, routes{
		"GET " + projectPath + "/repository/tree": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("path") != "locales/en" {
				reply(w, http.StatusNotFound, `{"message":"404 Tree Not Found"}`)
				return
			}
			assert.Equal(t, "true", q.Get("recursive"))
			reply(w, http.StatusOK, `[
				{"path":"locales/en/nested","type":"tree"},
				{"path":"locales/en/app-common.json","type":"blob"},
				{"path":"locales/en/other.json","type":"blob"}]`)
		},
	})
	ctx := context.Background()

	paths, err := c.GetTree(ctx, gitprovider.TreeInput{RepoRef: site, Branch: "main", PathPrefix: "locales/en/app-"})
	require.NoError(t, err)
	assert.Equal(t, []string{"locales/en/app-common.json"}, paths)

	paths, err = c.GetTree(ctx, gitprovider.TreeInput{RepoRef: site, Branch: "main", PathPrefix: "locales/xx/"})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

type commitAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func TestCommitFiles(t *testing.T) {
	var body struct {
		Branch        string         `json:"branch"`
		CommitMessage string         `json:"commit_message"`
		Actions       []commitAction `json:"actions"`
	}
	raw := func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, "{}") }
	c := newTestClient(t, routes{
		"GET " + projectPath + "/repository/files/locales%2Fen%2Fcommon.json/raw": raw,
		"GET " + projectPath + "/repository/files/locales%2Ffr%2Fold.json/raw":    raw,
		"POST " + projectPath + "/repository/commits": func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			reply(w, http.StatusCreated, `{"id":"c2","web_url":"https://gitlab.test/acme/site/-/commit/c2"}`)
		},
	})

	res, err := c.CommitFiles(context.Background(), gitprovider.CommitInput{
		RepoRef: site,
		Branch:  "main",
		Message: "Update translations",
		FilesToWrite: map[string][]byte{
			"locales/fr/common.json": []byte(`{"title":"Bonjour"}`),
			"locales/en/common.json": []byte(`{"title":"Hello"}`),
		},
		FilesToDelete: []string{"locales/fr/old.json", "locales/fr/gone.json"},
	})
	require.NoError(t, err)
	assert.Equal(t, gitprovider.CommitResult{URL: "https://gitlab.test/acme/site/-/commit/c2", Hash: "c2"}, res)

	assert.Equal(t, "main", body.Branch)
	assert.Equal(t, "Update translations", body.CommitMessage)
	assert.Equal(t, []commitAction{
		{Action: "delete", FilePath: "locales/fr/old.json"},
		{Action: "update", FilePath: "locales/en/common.json", Content: `{"title":"Hello"}`},
		{Action: "create", FilePath: "locales/fr/common.json", Content: `{"title":"Bonjour"}`},
	}, body.Actions)
}

func TestCommitFiles_Forbidden(t *testing.T) {
	c := newTestClient(t, routes{
		"POST " + projectPath + "/repository/commits": respond(http.StatusForbidden,
			`{"message":"You are not allowed to push into this branch"}`),
	})
	_, err := c.CommitFiles(context.Background(), gitprovider.CommitInput{
		RepoRef:      site,
		Branch:       "main",
		Message:      "msg",
		FilesToWrite: map[string][]byte{"a.json": []byte("{}")},
	})
	require.ErrorIs(t, err, gitprovider.ErrBranchPermissionViolated)
}

func TestClassify(t *testing.T) {
	errorResponse := func(status int) error {
		req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: "/api/v4/user"}}
		return &gitlab.ErrorResponse{Response: &http.Response{StatusCode: status, Request: req}}
	}
	forbidden := errorResponse(http.StatusForbidden)
	unauthorized := errorResponse(http.StatusUnauthorized)
	tests := []struct {
		err  error
		want gitprovider.Code
	}{
		{err: gitlab.ErrNotFound, want: gitprovider.CodeContentNotFound},
		{err: fmt.Errorf("wrapped: %w", gitlab.ErrNotFound), want: gitprovider.CodeContentNotFound},
		{err: unauthorized, want: gitprovider.CodeCredentialInvalid},
		{err: forbidden, want: gitprovider.CodeUnclassified},
	}
	for _, tc := range tests {
		got := gitprovider.CodeOf(classify("getContent", tc.err, gitprovider.CodeContentNotFound))
		if got != tc.want {
			t.Fatalf("classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
	if !isStatus(gitlab.ErrNotFound, http.StatusNotFound) {
		t.Fatal("isStatus(ErrNotFound, 404) = false, want true")
	}
}
