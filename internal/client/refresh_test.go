package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erauner12/urshop-admin/internal/secretstore"
	"github.com/erauner12/urshop-admin/internal/session"
)

// mockTokens is a simple in-memory TokenStore for testing
type mockTokens struct {
	mu       sync.Mutex
	access   string
	refresh  string
	setCalls int
}

func (m *mockTokens) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

func (m *mockTokens) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

func (m *mockTokens) SetTokens(_ context.Context, access, refresh string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.access = access
	if refresh != "" {
		m.refresh = refresh
	}
}

func (m *mockTokens) SetTokensIfRefresh(_ context.Context, expected, access, refresh string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expected == "" || m.refresh != expected {
		return false
	}
	m.setCalls++
	m.access = access
	if refresh != "" {
		m.refresh = refresh
	}
	return true
}

func (m *mockTokens) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access, m.refresh = "", ""
}

// panicTokens blows up on read, simulating a broken session layer
type panicTokens struct{ mockTokens }

func (*panicTokens) RefreshToken() string { panic("boom") }

// refreshHandler answers the refresh endpoint with the given pair when the
// expected refresh token is presented.
func refreshHandler(t *testing.T, calls *atomic.Int32, want string, pair TokenPair, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("refresh request must not carry a bearer token, got %q", auth)
		}

		var body refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pair)
	}
}

func TestRefresher_RotatesTokens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(refreshHandler(t, &calls, "R1", TokenPair{AccessToken: "A2", RefreshToken: "R2"}, 0))
	defer server.Close()

	tokens := &mockTokens{access: "A1", refresh: "R1"}
	r := NewRefresher(server.URL, server.Client(), tokens)

	token, ok := r.GetFreshToken(context.Background())
	if !ok || token != "A2" {
		t.Fatalf("expected A2, got %q (ok=%v)", token, ok)
	}
	if tokens.AccessToken() != "A2" || tokens.RefreshToken() != "R2" {
		t.Errorf("expected tokens A2/R2, got %s/%s", tokens.AccessToken(), tokens.RefreshToken())
	}
	if r.Calls() != 1 || calls.Load() != 1 {
		t.Errorf("expected 1 refresh call, got %d (server saw %d)", r.Calls(), calls.Load())
	}
	if r.State() != RefreshIdle {
		t.Errorf("expected idle after refresh, got %s", r.State())
	}
}

func TestRefresher_NoRefreshTokenSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(refreshHandler(t, &calls, "R1", TokenPair{AccessToken: "A2"}, 0))
	defer server.Close()

	r := NewRefresher(server.URL, server.Client(), &mockTokens{access: "A1"})

	if token, ok := r.GetFreshToken(context.Background()); ok || token != "" {
		t.Fatalf("expected no token, got %q (ok=%v)", token, ok)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no refresh request, got %d", calls.Load())
	}
}

func TestRefresher_RejectedRefreshKeepsSession(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(refreshHandler(t, &calls, "other", TokenPair{AccessToken: "A2"}, 0))
	defer server.Close()

	tokens := &mockTokens{access: "A1", refresh: "R1"}
	r := NewRefresher(server.URL, server.Client(), tokens)

	if _, ok := r.GetFreshToken(context.Background()); ok {
		t.Fatal("expected refresh to fail")
	}
	// A failed refresh does not log the user out
	if tokens.AccessToken() != "A1" || tokens.RefreshToken() != "R1" {
		t.Errorf("tokens changed after failed refresh: %s/%s", tokens.AccessToken(), tokens.RefreshToken())
	}
}

func TestRefresher_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":`))
	}))
	defer server.Close()

	tokens := &mockTokens{access: "A1", refresh: "R1"}
	r := NewRefresher(server.URL, server.Client(), tokens)

	if _, ok := r.GetFreshToken(context.Background()); ok {
		t.Fatal("expected refresh to fail on malformed body")
	}
	if tokens.setCalls != 0 {
		t.Errorf("expected no SetTokens call, got %d", tokens.setCalls)
	}
}

func TestRefresher_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	r := NewRefresher(url, &http.Client{Timeout: time.Second}, &mockTokens{access: "A1", refresh: "R1"})
	if _, ok := r.GetFreshToken(context.Background()); ok {
		t.Fatal("expected refresh to fail when backend is down")
	}
}

func TestRefresher_RecoversFromPanic(t *testing.T) {
	r := NewRefresher("http://127.0.0.1:0", http.DefaultClient, &panicTokens{})

	if _, ok := r.GetFreshToken(context.Background()); ok {
		t.Fatal("expected panic to resolve to no token")
	}
	if r.State() != RefreshIdle {
		t.Errorf("expected idle after panic, got %s", r.State())
	}
}

func TestRefresher_LogoutDuringRefreshWins(t *testing.T) {
	tokens := &mockTokens{access: "A1", refresh: "R1"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The user logs out while the refresh is in flight
		tokens.clear()
		json.NewEncoder(w).Encode(TokenPair{AccessToken: "A2", RefreshToken: "R2"})
	}))
	defer server.Close()

	r := NewRefresher(server.URL, server.Client(), tokens)
	if token, ok := r.GetFreshToken(context.Background()); ok {
		t.Fatalf("expected no token after logout, got %q", token)
	}
	if tokens.AccessToken() != "" || tokens.RefreshToken() != "" {
		t.Errorf("refresh resurrected the session: %s/%s", tokens.AccessToken(), tokens.RefreshToken())
	}
}

// logoutBeforeWrite logs the user out the moment the refresher is about to
// publish the refreshed pair, after the response has been read.
type logoutBeforeWrite struct {
	*session.State
}

func (l logoutBeforeWrite) SetTokensIfRefresh(ctx context.Context, expected, access, refresh string) bool {
	l.State.Clear(ctx)
	return l.State.SetTokensIfRefresh(ctx, expected, access, refresh)
}

func TestRefresher_LogoutBeforeWriteWins(t *testing.T) {
	ctx := context.Background()
	store := secretstore.NewMemory()
	state := session.New(store)
	state.SetTokens(ctx, "A1", "R1")

	var calls atomic.Int32
	server := httptest.NewServer(refreshHandler(t, &calls, "R1", TokenPair{AccessToken: "A2", RefreshToken: "R2"}, 0))
	defer server.Close()

	r := NewRefresher(server.URL, server.Client(), logoutBeforeWrite{state})
	if token, ok := r.GetFreshToken(ctx); ok {
		t.Fatalf("expected no token after logout, got %q", token)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 refresh call, got %d", calls.Load())
	}
	if got := state.Status(); got != session.StatusUnauthenticated {
		t.Errorf("expected unauthenticated, got %s", got)
	}
	if got := state.RefreshToken(); got != "" {
		t.Errorf("refresh resurrected the session in memory: %q", got)
	}
	if persisted, err := store.Get(ctx, session.RefreshTokenKey); !errors.Is(err, secretstore.ErrNotFound) {
		t.Errorf("refresh resurrected the persisted session: %q (err %v)", persisted, err)
	}
}

func TestRefresher_CallerCancellationDoesNotAbortShared(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(refreshHandler(t, &calls, "R1", TokenPair{AccessToken: "A2", RefreshToken: "R2"}, 150*time.Millisecond))
	defer server.Close()

	tokens := &mockTokens{access: "A1", refresh: "R1"}
	r := NewRefresher(server.URL, server.Client(), tokens)

	impatient, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		_, ok := r.GetFreshToken(impatient)
		done <- ok
	}()

	// Join the flight the impatient caller started
	time.Sleep(5 * time.Millisecond)
	token, ok := r.GetFreshToken(context.Background())

	if <-done {
		t.Error("expected cancelled caller to get no token")
	}
	if !ok || token != "A2" {
		t.Fatalf("expected patient caller to get A2, got %q (ok=%v)", token, ok)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 refresh call, got %d", calls.Load())
	}
}

func TestRefreshState_String(t *testing.T) {
	if RefreshIdle.String() != "idle" || RefreshInProgress.String() != "refreshing" {
		t.Errorf("unexpected state names: %s, %s", RefreshIdle, RefreshInProgress)
	}
}
