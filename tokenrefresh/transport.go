package tokenrefresh

import (
	"context"
	"net/http"
)

// Source supplies the access token for an outgoing request.
type Source interface {
	AccessToken(ctx context.Context) (string, error)
}

// Transport sets a bearer Authorization header from Source on every request,
// replacing any header already present.
type Transport struct {
	Source Source
	Base   http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Source.AccessToken(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+tok)
	return t.base().RoundTrip(r)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
