// Package session owns the git provider client of an editing session.
//
// The adapter is picked once from the provider name in the credential store
// and kept until CredentialsChanged is called (after login, logout or a
// provider switch). Nothing outside this package and the adapters knows
// which backend is in use.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/minios-linux/i18ncms/bitbucketapi"
	"github.com/minios-linux/i18ncms/githubapi"
	"github.com/minios-linux/i18ncms/gitlabapi"
	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/logging"
	"github.com/minios-linux/i18ncms/settings"
	"github.com/minios-linux/i18ncms/tokenrefresh"
)

// Options configure a Client.
type Options struct {
	Config settings.Config
	Store  settings.Store
	Log    *slog.Logger

	// Transport is the innermost round tripper; nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
	// Now replaces time.Now for token expiry checks.
	Now func() time.Time
}

// Client is the provider-polymorphic façade used by every higher layer.
type Client struct {
	opts Options

	mu       sync.RWMutex
	provider gitprovider.Provider
	session  settings.Session
}

var _ gitprovider.Provider = (*Client)(nil)

// New builds a client from the session stored in opts.Store.
func New(opts Options) (*Client, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Client{opts: opts}
	if err := c.CredentialsChanged(); err != nil {
		return nil, err
	}
	return c, nil
}

// CredentialsChanged re-reads the credential store and replaces the adapter.
func (c *Client) CredentialsChanged() error {
	sess, err := settings.LoadSession(c.opts.Store)
	if err != nil {
		return err
	}
	p, err := build(c.opts, sess)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.provider, c.session = p, sess
	c.mu.Unlock()
	c.opts.Log.Debug("git provider client ready", "provider", sess.Provider, "rotating", sess.Rotating())
	return nil
}

func (c *Client) current() gitprovider.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func build(opts Options, sess settings.Session) (gitprovider.Provider, error) {
	kind, ok := gitprovider.ParseKind(sess.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown git provider %q", sess.Provider)
	}
	hc := httpClient(opts, kind, sess)
	log := opts.Log
	switch kind {
	case gitprovider.GitHub:
		return githubapi.New(hc, opts.Config.GitHubAPIURL, log)
	case gitprovider.GitLab:
		return gitlabapi.New(hc, opts.Config.GitLabAPIURL(), log)
	default:
		return bitbucketapi.New(hc, opts.Config.BitbucketAPIURL, log), nil
	}
}

// httpClient stacks authentication on top of request logging. Rotating
// GitLab and Bitbucket sessions go through a refresh coordinator; everything
// else sends the stored token as is.
func httpClient(opts Options, kind gitprovider.Kind, sess settings.Session) *http.Client {
	base := logging.NewTransport(opts.Transport, opts.Log)

	var rt http.RoundTripper
	if conf := oauthConfig(opts.Config, kind); conf != nil && sess.Rotating() {
		coord := tokenrefresh.New(
			tokenStore{opts.Store},
			&tokenrefresh.OAuth2Refresher{
				Config:     conf,
				HTTPClient: &http.Client{Transport: base, Timeout: opts.Config.HTTPTimeout},
			},
			tokenrefresh.WithLogger(opts.Log),
			tokenrefresh.WithClock(opts.Now),
		)
		rt = &tokenrefresh.Transport{Source: coord, Base: base}
	} else {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: sess.AccessToken}),
			Base:   base,
		}
	}
	return &http.Client{Transport: rt, Timeout: opts.Config.HTTPTimeout}
}

func oauthConfig(cfg settings.Config, kind gitprovider.Kind) *oauth2.Config {
	switch kind {
	case gitprovider.GitLab:
		return &oauth2.Config{
			ClientID:     cfg.GitLabClientID,
			ClientSecret: cfg.GitLabClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.GitLabTokenURL()},
		}
	case gitprovider.Bitbucket:
		return &oauth2.Config{
			ClientID:     cfg.BitbucketClientID,
			ClientSecret: cfg.BitbucketClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.BitbucketTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
	}
	return nil
}

// tokenStore exposes the session keys to the refresh coordinator.
type tokenStore struct {
	st settings.Store
}

func (t tokenStore) Token() (tokenrefresh.Token, error) {
	s, err := settings.LoadSession(t.st)
	if err != nil {
		return tokenrefresh.Token{}, err
	}
	return tokenrefresh.Token{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, Expiry: s.ExpiresAt}, nil
}

func (t tokenStore) SaveToken(tok tokenrefresh.Token) error {
	return settings.SaveTokens(t.st, tok.AccessToken, tok.RefreshToken, tok.Expiry)
}

// ---------------------------------------------------------------------------
// gitprovider.Provider
// ---------------------------------------------------------------------------

// Session returns the credentials the current adapter was built from.
func (c *Client) Session() settings.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) Kind() gitprovider.Kind { return c.current().Kind() }

func (c *Client) GetCurrentUser(ctx context.Context) (gitprovider.User, error) {
	return c.current().GetCurrentUser(ctx)
}

func (c *Client) GetOrganizations(ctx context.Context) ([]gitprovider.Organization, error) {
	return c.current().GetOrganizations(ctx)
}

func (c *Client) GetRepo(ctx context.Context, ref gitprovider.RepoRef) (gitprovider.Repo, error) {
	return c.current().GetRepo(ctx, ref)
}

func (c *Client) CreateRepo(ctx context.Context, in gitprovider.CreateRepoInput) (gitprovider.Repo, error) {
	return c.current().CreateRepo(ctx, in)
}

func (c *Client) GetBranch(ctx context.Context, ref gitprovider.BranchRef) (gitprovider.Branch, error) {
	return c.current().GetBranch(ctx, ref)
}

func (c *Client) CreateBranch(ctx context.Context, in gitprovider.CreateBranchInput) (gitprovider.Branch, error) {
	return c.current().CreateBranch(ctx, in)
}

func (c *Client) GetContent(ctx context.Context, ref gitprovider.ContentRef) ([]byte, error) {
	return c.current().GetContent(ctx, ref)
}

func (c *Client) GetTree(ctx context.Context, in gitprovider.TreeInput) ([]string, error) {
	return c.current().GetTree(ctx, in)
}

func (c *Client) CommitFiles(ctx context.Context, in gitprovider.CommitInput) (gitprovider.CommitResult, error) {
	return c.current().CommitFiles(ctx, in)
}
