// Package bitbucket implements the Bitbucket Server access layer: token
// acquisition, authenticated requests, paginated listings and raw file
// loading.
package bitbucket

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pcf-tools/org-mgmt-server/internal/config"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

// MaxResponseSize is the maximum allowed response size (32MB). Org
// config files and repo listings are small; anything larger is garbage.
const MaxResponseSize = 32 * 1024 * 1024

// Executor issues a single authenticated GET against Bitbucket.
type Executor interface {
	// Get returns the response body for a 200 response. Non-200
	// responses yield *RequestFailedError; a TLS/auth-class transport
	// failure that survives one token re-acquisition yields
	// ErrAuthRetryExhausted; other transport errors are returned as-is.
	Get(ctx context.Context, url string) ([]byte, error)
}

// Client is the default Executor implementation. It lazily acquires an
// access token on first use and re-acquires it at most once per call
// when a request fails on a TLS/auth error. Safe for concurrent use.
type Client struct {
	tokens     TokenProvider
	httpClient *http.Client

	mu    sync.RWMutex // protects token
	token string
}

var _ Executor = (*Client)(nil)

// NewClient creates a Client using the given token provider and HTTP
// client.
func NewClient(tokens TokenProvider, httpClient *http.Client) *Client {
	return &Client{
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// NewHTTPClient builds the HTTP client shared by all Bitbucket traffic,
// applying the configured request timeout and TLS verification mode.
func NewHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.RequestVerify {
		//nolint:gosec // verification is operator-configurable via BB_REQUEST_VERIFY
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: transport,
	}
}

// Get issues an authenticated GET. A TLS/auth-class transport error
// triggers exactly one token re-acquisition and retry; a second failure
// of the same class returns ErrAuthRetryExhausted.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	logger.Debugf("Bitbucket request: %s", url)

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.currentToken(ctx)
		if err != nil {
			return nil, err
		}

		body, err := c.do(ctx, url, token)
		if err == nil {
			return body, nil
		}
		if !isTLSError(err) {
			return nil, err
		}

		logger.Infof("Request TLS error")
		logger.Debugf("Request TLS error: %v", err)
		if attempt == 0 {
			logger.Info("Re-auth and retry")
			if err := c.renewToken(ctx); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("Request failed on auth error")
	return nil, ErrAuthRetryExhausted
}

// do performs one request with the given token.
func (c *Client) do(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("bearer %s", token))

	rsp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rsp.Body.Close()
	}()

	if rsp.StatusCode != http.StatusOK {
		logger.Infof("Request status %d: %s", rsp.StatusCode, rsp.Status)
		return nil, &RequestFailedError{Status: rsp.StatusCode, Reason: rsp.Status}
	}

	limited := io.LimitReader(rsp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// currentToken returns the cached token, acquiring one on first use.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}
	return c.acquireToken(ctx, "")
}

// renewToken discards the current token and acquires a new one.
func (c *Client) renewToken(ctx context.Context) error {
	c.mu.RLock()
	stale := c.token
	c.mu.RUnlock()
	_, err := c.acquireToken(ctx, stale)
	return err
}

// acquireToken fetches a new token unless another caller already
// replaced the stale one.
func (c *Client) acquireToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.token != stale {
		return c.token, nil
	}
	token, err := c.tokens.Acquire(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// isTLSError reports whether err is the TLS/auth class of transport
// failure that warrants a token re-acquisition. Bitbucket deployments
// fronted by an auth-terminating proxy surface expired tokens as TLS
// failures rather than 401s.
func isTLSError(err error) bool {
	var (
		recordErr  tls.RecordHeaderError
		verifyErr  *tls.CertificateVerificationError
		alertErr   tls.AlertError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &recordErr),
		errors.As(err, &verifyErr),
		errors.As(err, &alertErr),
		errors.As(err, &authErr),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		return true
	}
	return false
}
