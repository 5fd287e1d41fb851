package tokenrefresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/logging"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu    sync.Mutex
	tok   Token
	saves int
}

func (s *memStore) Token() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok, nil
}

func (s *memStore) SaveToken(t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = t
	s.saves++
	return nil
}

type fakeRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	next    Token
	err     error
}

func (r *fakeRefresher) Refresh(_ context.Context, refreshToken string) (Token, error) {
	if r.calls.Add(1) == 1 && r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return Token{}, r.err
	}
	return r.next, nil
}

func newCoordinator(store Store, r Refresher) *Coordinator {
	return New(store, r, WithClock(func() time.Time { return now }), WithLogger(logging.Discard()))
}

func expiredToken() Token {
	return Token{AccessToken: "old", RefreshToken: "r1", Expiry: now.Add(-time.Minute)}
}

func TestAccessToken_FreshTokenIsNotRefreshed(t *testing.T) {
	store := &memStore{tok: Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(time.Hour)}}
	r := &fakeRefresher{}

	got, err := newCoordinator(store, r).AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	assert.Zero(t, r.calls.Load())
}

func TestAccessToken_LeewayTriggersRefresh(t *testing.T) {
	store := &memStore{tok: Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(30 * time.Second)}}
	r := &fakeRefresher{next: Token{AccessToken: "b", RefreshToken: "r2", Expiry: now.Add(time.Hour)}}

	got, err := newCoordinator(store, r).AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	store := &memStore{tok: expiredToken()}
	r := &fakeRefresher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		next:    Token{AccessToken: "new", RefreshToken: "r2", Expiry: now.Add(time.Hour)},
	}
	c := newCoordinator(store, r)

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = c.AccessToken(context.Background())
		}()
	}
	<-r.started
	close(r.release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "new", tokens[i])
	}
	assert.EqualValues(t, 1, r.calls.Load())
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "r2", store.tok.RefreshToken)
}

func TestAccessToken_FailureIsCredentialInvalid(t *testing.T) {
	store := &memStore{tok: expiredToken()}
	r := &fakeRefresher{err: errors.New("invalid_grant")}

	_, err := newCoordinator(store, r).AccessToken(context.Background())
	require.ErrorIs(t, err, gitprovider.ErrCredentialInvalid)
	assert.Zero(t, store.saves)
	assert.Equal(t, "old", store.tok.AccessToken)
}

func TestAccessToken_NoRefreshToken(t *testing.T) {
	store := &memStore{tok: Token{AccessToken: "old", Expiry: now.Add(-time.Minute)}}
	r := &fakeRefresher{}

	_, err := newCoordinator(store, r).AccessToken(context.Background())
	require.ErrorIs(t, err, gitprovider.ErrCredentialInvalid)
	assert.Zero(t, r.calls.Load())
}

func TestAccessToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	store := &memStore{tok: expiredToken()}
	r := &fakeRefresher{next: Token{AccessToken: "new", Expiry: now.Add(time.Hour)}}

	_, err := newCoordinator(store, r).AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r1", store.tok.RefreshToken)
}

func TestAccessToken_CallerCancellation(t *testing.T) {
	store := &memStore{tok: expiredToken()}
	r := &fakeRefresher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		next:    Token{AccessToken: "new", RefreshToken: "r2", Expiry: now.Add(time.Hour)},
	}
	c := newCoordinator(store, r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.AccessToken(ctx)
		done <- err
	}()
	<-r.started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The refresh itself still completes for the next caller.
	close(r.release)
	got, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestTransport_SetsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer srv.Close()

	store := &memStore{tok: Token{AccessToken: "tok", Expiry: now.Add(time.Hour)}}
	hc := &http.Client{Transport: &Transport{Source: newCoordinator(store, &fakeRefresher{})}}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer stale")
	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	assert.Equal(t, "Bearer tok", string(buf[:n]))
}

func TestTransport_TokenErrorFailsRequest(t *testing.T) {
	store := &memStore{tok: Token{AccessToken: "old", Expiry: now.Add(-time.Hour)}}
	hc := &http.Client{Transport: &Transport{Source: newCoordinator(store, &fakeRefresher{})}}

	_, err := hc.Get("http://127.0.0.1:1/never")
	require.ErrorIs(t, err, gitprovider.ErrCredentialInvalid)
}

func TestOAuth2Refresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "r1" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","refresh_token":"r2","token_type":"bearer","expires_in":7200}`))
	}))
	defer srv.Close()

	r := &OAuth2Refresher{
		Config:     &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: srv.URL}},
		HTTPClient: srv.Client(),
	}
	tok, err := r.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "r2", tok.RefreshToken)
	assert.False(t, tok.Expiry.IsZero())

	_, err = r.Refresh(context.Background(), "bad")
	require.Error(t, err)
}
