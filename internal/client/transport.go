package client

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// authTransport decorates every request with the current bearer token and
// turns a 401 into at most one refresh-and-retry.
//
// The retry is structural: RoundTrip sends the request at most twice and the
// second response is returned whatever its status, so a request can never
// loop through refresh.
type authTransport struct {
	base      http.RoundTripper
	tokens    TokenStore
	refresher TokenRefresher
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isAuthEndpoint(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	first, err := withBearer(req, getBody, t.tokens.AccessToken())
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	logger := log.Ctx(req.Context())
	logger.Debug().Msg("401 Unauthorized - requesting fresh token")

	token, ok := t.refresher.GetFreshToken(req.Context())
	if !ok {
		logger.Warn().Msg("401 Unauthorized - no fresh token available")
		return resp, nil
	}

	drain(resp)

	retry, err := withBearer(req, getBody, token)
	if err != nil {
		return nil, err
	}
	logger.Debug().Msg("retrying with refreshed token")
	return t.base.RoundTrip(retry)
}

// isAuthEndpoint reports whether path is the login or refresh endpoint.
// A suffix match tolerates base URLs with a path prefix.
func isAuthEndpoint(path string) bool {
	return strings.HasSuffix(path, LoginPath) || strings.HasSuffix(path, RefreshPath)
}

// replayableBody returns a function yielding fresh copies of the request body,
// or nil if the request has none.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		// Every attempt sends a copy; the original is ours to close
		req.Body.Close()
		return req.GetBody, nil
	}

	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}, nil
}

// withBearer clones req with a fresh body and the given token.
func withBearer(req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
		clone.GetBody = getBody
	}

	if token != "" {
		clone.Header.Set("Authorization", "Bearer "+token)
	} else {
		clone.Header.Del("Authorization")
	}
	return clone, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
