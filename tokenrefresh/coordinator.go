// Package tokenrefresh keeps short-lived OAuth access tokens fresh for
// providers that rotate them with a refresh token (GitLab, Bitbucket).
//
// A Coordinator checks the cached token before every request. When it has
// expired, exactly one refresh runs no matter how many requests are waiting;
// the others block on it and then continue with the renewed token. The
// renewed access token, the rotated refresh token and the new expiry are
// written back to the credential store. A failed refresh fails every waiting
// request with CREDENTIAL_INVALID and is not retried.
//
// Personal access tokens and other non-rotating credentials never go through
// a Coordinator.
package tokenrefresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/minios-linux/i18ncms/gitprovider"
)

// DefaultLeeway treats a token as expired slightly before its expiry so that
// it does not lapse in flight.
const DefaultLeeway = 60 * time.Second

const flightKey = "refresh"

// Token is an access token with its refresh token and expiry.
// A zero Expiry never expires.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Refresher exchanges a refresh token for a new Token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// Store is where the current token lives between requests.
type Store interface {
	Token() (Token, error)
	SaveToken(Token) error
}

// Coordinator hands out access tokens, refreshing them single-flight.
type Coordinator struct {
	store     Store
	refresher Refresher
	leeway    time.Duration
	now       func() time.Time
	log       *slog.Logger

	group singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) Option {
	return func(c *Coordinator) { c.leeway = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger used for refresh events.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// New returns a Coordinator reading and persisting tokens through store.
func New(store Store, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		leeway:    DefaultLeeway,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) expired(t Token) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !c.now().Before(t.Expiry.Add(-c.leeway))
}

// AccessToken returns a valid access token, refreshing it first if needed.
// The refresh itself is not bound to ctx: a caller giving up does not abort
// it for the others waiting on the same refresh.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	tok, err := c.store.Token()
	if err != nil {
		return "", gitprovider.Wrap(gitprovider.CodeCredentialInvalid, "accessToken", err)
	}
	if !c.expired(tok) {
		return tok.AccessToken, nil
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Token).AccessToken, nil
	}
}

func (c *Coordinator) refresh(ctx context.Context) (Token, error) {
	// A flight that finished just before this one started may already have
	// renewed the token.
	cur, err := c.store.Token()
	if err != nil {
		return Token{}, gitprovider.Wrap(gitprovider.CodeCredentialInvalid, "refreshToken", err)
	}
	if !c.expired(cur) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		return Token{}, gitprovider.Wrap(gitprovider.CodeCredentialInvalid, "refreshToken",
			errors.New("access token expired and no refresh token is stored"))
	}

	c.log.Debug("refreshing access token", "expired_at", cur.Expiry)
	next, err := c.refresher.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		c.log.Warn("token refresh failed", "error", err)
		return Token{}, gitprovider.Wrap(gitprovider.CodeCredentialInvalid, "refreshToken", err)
	}
	if next.AccessToken == "" {
		return Token{}, gitprovider.Wrap(gitprovider.CodeCredentialInvalid, "refreshToken",
			errors.New("no access token in refresh response"))
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	if err := c.store.SaveToken(next); err != nil {
		return Token{}, gitprovider.Wrap(gitprovider.CodeCredentialInvalid, "refreshToken", err)
	}
	c.log.Info("access token refreshed", "expires_at", next.Expiry)
	return next, nil
}
