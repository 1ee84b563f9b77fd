package bitbucket

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pcf-tools/org-mgmt-server/internal/config"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

const (
	// tokenExchangeTries bounds the retries against the token endpoint.
	// The endpoint is the single hard dependency of every refresh cycle,
	// so transient failures get a couple of quick retries before the
	// exchange is reported as failed.
	tokenExchangeTries = 3

	tokenExchangeInitialInterval = 500 * time.Millisecond
)

// TokenProvider obtains OAuth2 access tokens for Bitbucket requests.
type TokenProvider interface {
	// Acquire performs a client-credentials exchange and returns a fresh
	// access token. Failures are reported as *AuthError.
	Acquire(ctx context.Context) (string, error)
}

// clientCredentialsProvider implements TokenProvider using the standard
// OAuth2 client-credentials flow.
type clientCredentialsProvider struct {
	conf       *clientcredentials.Config
	httpClient *http.Client
}

// NewTokenProvider creates a TokenProvider for the configured token
// endpoint. The supplied HTTP client is used for the exchange so that
// timeout and TLS settings match the rest of the Bitbucket traffic.
func NewTokenProvider(cfg *config.Config, httpClient *http.Client) TokenProvider {
	return &clientCredentialsProvider{
		conf: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.OAuthURL,
		},
		httpClient: httpClient,
	}
}

// Acquire fetches a new access token from the token endpoint.
func (p *clientCredentialsProvider) Acquire(ctx context.Context) (string, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = tokenExchangeInitialInterval

	token, err := backoff.Retry(ctx,
		func() (*oauth2.Token, error) {
			return p.conf.Token(ctx)
		},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(tokenExchangeTries),
	)
	if err != nil {
		logger.Errorf("Failed retrieving access token from url %s: %v", p.conf.TokenURL, err)
		return "", &AuthError{Err: err}
	}
	return token.AccessToken, nil
}
