// Package credentials attaches catalogue service credentials to outgoing
// requests.
package credentials

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider sets an authorization credential on a request before it is sent.
// Implementations must be safe for concurrent use.
type Provider interface {
	Apply(req *http.Request) error
}

// Transport is an http.RoundTripper that applies a Provider to every
// request before delegating to Base.
type Transport struct {
	Provider Provider
	// Base defaults to http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Provider == nil {
		return base.RoundTrip(req)
	}

	// RoundTrip must not modify the caller's request.
	r := req.Clone(req.Context())
	if err := t.Provider.Apply(r); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, errors.Wrap(err, "apply credentials")
	}
	return base.RoundTrip(r)
}

// Basic sends a static username and password with HTTP basic auth.
type Basic struct {
	Username string
	Password string
}

// Apply implements Provider.
func (b Basic) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Bearer sends an OAuth2 access token obtained from a token source.
// Acquisition, caching and refresh are left to the source.
type Bearer struct {
	source oauth2.TokenSource
}

// NewBearer wraps src so that a token is reused until it expires.
func NewBearer(src oauth2.TokenSource) *Bearer {
	return &Bearer{source: oauth2.ReuseTokenSource(nil, src)}
}

// Apply implements Provider.
func (b *Bearer) Apply(req *http.Request) error {
	token, err := b.source.Token()
	if err != nil {
		return errors.Wrap(err, "obtain access token")
	}
	token.SetAuthHeader(req)
	return nil
}

// ClientRegistration describes an OAuth2 client that authenticates with the
// client credentials grant.
type ClientRegistration struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewClientCredentials returns a Bearer provider for reg. Token requests are
// made with tokenClient when it is non-nil, and stop when ctx is cancelled.
func NewClientCredentials(ctx context.Context, reg ClientRegistration, tokenClient *http.Client) *Bearer {
	cfg := clientcredentials.Config{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
		TokenURL:     reg.TokenURL,
		Scopes:       reg.Scopes,
	}
	if tokenClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, tokenClient)
	}
	return NewBearer(cfg.TokenSource(ctx))
}

// None leaves requests unauthenticated.
type None struct{}

// Apply implements Provider.
func (None) Apply(*http.Request) error { return nil }
