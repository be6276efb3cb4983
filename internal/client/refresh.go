package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// RefreshState is the state of the refresh state machine.
type RefreshState int32

const (
	RefreshIdle RefreshState = iota
	RefreshInProgress
)

func (s RefreshState) String() string {
	if s == RefreshInProgress {
		return "refreshing"
	}
	return "idle"
}

const (
	refreshFlight       = "refresh"
	maxTokenResponseLen = 64 << 10
)

// Refresher exchanges the refresh token for a new access token.
// At most one refresh call is in flight at a time; callers arriving while one
// is in progress share its result instead of starting another.
type Refresher struct {
	refreshURL string
	httpClient *http.Client
	tokens     TokenStore

	group singleflight.Group
	state atomic.Int32
	calls atomic.Int64
}

// NewRefresher creates a Refresher. httpClient must not carry the auth
// transport, or a failing refresh would recurse into itself.
func NewRefresher(baseURL string, httpClient *http.Client, tokens TokenStore) *Refresher {
	return &Refresher{
		refreshURL: strings.TrimRight(baseURL, "/") + RefreshPath,
		httpClient: httpClient,
		tokens:     tokens,
	}
}

// GetFreshToken returns a new access token, or ("", false) if there is no
// refresh token or the refresh failed for any reason.
//
// The shared network call is detached from the first caller's cancellation
// and bounded by the HTTP client timeout; a caller whose ctx ends stops
// waiting without affecting the others.
func (r *Refresher) GetFreshToken(ctx context.Context) (string, bool) {
	ch := r.group.DoChan(refreshFlight, func() (any, error) {
		r.state.Store(int32(RefreshInProgress))
		defer r.state.Store(int32(RefreshIdle))
		return r.refresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		token, _ := res.Val.(string)
		return token, token != ""
	case <-ctx.Done():
		return "", false
	}
}

// State reports whether a refresh is currently in flight.
func (r *Refresher) State() RefreshState {
	return RefreshState(r.state.Load())
}

// Calls returns how many refresh requests were sent to the backend.
func (r *Refresher) Calls() int64 {
	return r.calls.Load()
}

// refresh performs one refresh round trip. Every failure, including a panic,
// resolves to "".
func (r *Refresher) refresh(ctx context.Context) (token string) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("token refresh panicked")
			token = ""
		}
	}()

	refreshToken := r.tokens.RefreshToken()
	if refreshToken == "" {
		log.Debug().Msg("no refresh token, skipping refresh")
		return ""
	}

	correlationID := uuid.New().String()
	logger := log.With().Str("correlationId", correlationID).Logger()

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode refresh request")
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.refreshURL, bytes.NewReader(body))
	if err != nil {
		logger.Error().Err(err).Msg("failed to build refresh request")
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", correlationID)

	r.calls.Add(1)
	start := time.Now()
	resp, err := r.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		logger.Warn().Err(err).Dur("duration", duration).Msg("token refresh request failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		logger.Warn().Int("status", resp.StatusCode).Dur("duration", duration).Msg("token refresh rejected")
		return ""
	}

	var pair TokenPair
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenResponseLen)).Decode(&pair); err != nil {
		logger.Warn().Err(err).Msg("failed to parse refresh response")
		return ""
	}
	if pair.AccessToken == "" {
		logger.Warn().Msg("refresh response has no access token")
		return ""
	}

	// A logout or a new login while the call was in flight wins over this
	// result; the session must not be resurrected by a late refresh.
	if !r.tokens.SetTokensIfRefresh(ctx, refreshToken, pair.AccessToken, pair.RefreshToken) {
		logger.Info().Msg("session changed during refresh, discarding refreshed tokens")
		return r.tokens.AccessToken()
	}

	logger.Info().
		Dur("duration", duration).
		Bool("rotated", pair.RefreshToken != "" && pair.RefreshToken != refreshToken).
		Msg("access token refreshed")

	return pair.AccessToken
}
