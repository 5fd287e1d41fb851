package tokenrefresh

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Refresher performs the refresh_token grant against Config's token
// endpoint.
type OAuth2Refresher struct {
	Config *oauth2.Config
	// HTTPClient is used for the token request when set.
	HTTPClient *http.Client
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	// A token without an access token is never valid, so the source goes
	// straight to the refresh grant.
	t, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}, nil
}
