package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials for the client-credentials grant of the identity provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// NewTokenSource returns a process-wide cached token source. Tokens are
// treated as expired earlyExpiry before the provider's expires_in, so a batch
// never starts a request with a token about to lapse.
func NewTokenSource(ctx context.Context, creds Credentials, earlyExpiry time.Duration, httpClient *http.Client) (oauth2.TokenSource, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.TokenURL == "" {
		return nil, fmt.Errorf("missing required credentials: client id, client secret or token url")
	}

	config := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return oauth2.ReuseTokenSourceWithExpiry(nil, fetchSource{ctx: ctx, config: config}, earlyExpiry), nil
}

// fetchSource requests a new token on every call. clientcredentials'
// own TokenSource caches internally, which would hide the early expiry.
type fetchSource struct {
	ctx    context.Context
	config *clientcredentials.Config
}

func (s fetchSource) Token() (*oauth2.Token, error) {
	return s.config.Token(s.ctx)
}

// BearerFunc formats the Authorization header value for a token.
type BearerFunc func(accessToken string) string

func PlainBearer(accessToken string) string {
	return "Bearer " + accessToken
}

// OIDCBearer formats tokens the way openEO back-ends expect them:
// "Bearer oidc/<provider>/<token>".
func OIDCBearer(provider string) BearerFunc {
	return func(accessToken string) string {
		return fmt.Sprintf("Bearer oidc/%s/%s", provider, accessToken)
	}
}

// Header fetches a (possibly cached) token and formats the header value.
func Header(ts oauth2.TokenSource, format BearerFunc) (string, error) {
	token, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return format(token.AccessToken), nil
}
