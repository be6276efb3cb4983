package client

import (
	"context"
	"net/http"
	"time"
)

// Backend auth endpoints. Requests to these never go through the refresh
// protocol.
const (
	LoginPath   = "/admin/login"
	RefreshPath = "/admin/refresh"
)

// TokenStore abstracts the session state for the client.
// session.State implements it; tests use a small in-memory fake.
type TokenStore interface {
	// AccessToken returns the current access token without I/O ("" if none)
	AccessToken() string

	// RefreshToken returns the current refresh token without I/O ("" if none)
	RefreshToken() string

	// SetTokens publishes and persists a new token pair
	SetTokens(ctx context.Context, access, refresh string)

	// SetTokensIfRefresh stores the pair only if the current refresh token
	// is still expectedRefresh, atomically. It reports whether it did.
	SetTokensIfRefresh(ctx context.Context, expectedRefresh, access, refresh string) bool
}

// TokenRefresher obtains a new access token after an authorization failure.
type TokenRefresher interface {
	// GetFreshToken returns a new access token, or ("", false) when none
	// could be obtained. It never returns an error.
	GetFreshToken(ctx context.Context) (string, bool)
}

// TokenPair is the token body returned by the login and refresh endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// errorResponse is the backend's JSON error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	// Timeout bounds each HTTP call (default 30s)
	Timeout time.Duration

	// Transport is the underlying round tripper (default http.DefaultTransport)
	Transport http.RoundTripper

	// RateLimitBackoff is the initial backoff for 429 responses without
	// Retry-After (default 1s, doubled per retry)
	RateLimitBackoff time.Duration

	// MaxRetries bounds 429 retries (default 3)
	MaxRetries int
}
