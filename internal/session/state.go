// Package session owns the admin's authentication state: the access/refresh
// token pair, its status, and its durable mirror in a secretstore.Store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erauner12/urshop-admin/internal/secretstore"
	"github.com/rs/zerolog/log"
)

// Fixed secret store keys for the token pair.
const (
	AccessTokenKey  = "urshop.access_token"
	RefreshTokenKey = "urshop.refresh_token"
)

// Status is the authentication status of a Session.
type Status int

const (
	StatusUninitialized Status = iota
	StatusChecking
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusChecking:
		return "checking"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Session is a point-in-time copy of the authentication record.
// Status is StatusAuthenticated iff AccessToken is non-empty.
type Session struct {
	Status       Status
	AccessToken  string
	RefreshToken string

	// ExpiresAt is the access token's exp claim, decoded without
	// verification. Zero when the token is not a JWT or has no exp.
	ExpiresAt time.Time
}

// State is the single source of truth for whether the admin is logged in.
// Memory is updated first and the secret store mirrors it; persistMu keeps
// store writes in the same order as the memory updates they mirror.
type State struct {
	store secretstore.Store

	persistMu sync.Mutex

	mu      sync.RWMutex
	current Session
	subs    map[int]func(Status)
	nextSub int
}

// New creates an uninitialized State mirrored to store.
func New(store secretstore.Store) *State {
	return &State{
		store:   store,
		current: Session{Status: StatusUninitialized},
		subs:    make(map[int]func(Status)),
	}
}

// Restore loads the persisted token pair. Both tokens must be present for the
// session to become authenticated; any read failure counts as logged out.
func (s *State) Restore(ctx context.Context) Session {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.transition(func(cur *Session) { cur.Status = StatusChecking })

	access, accessErr := s.store.Get(ctx, AccessTokenKey)
	refresh, refreshErr := s.store.Get(ctx, RefreshTokenKey)

	for _, err := range []error{accessErr, refreshErr} {
		if err != nil && !errors.Is(err, secretstore.ErrNotFound) {
			log.Warn().Err(err).Msg("failed to read persisted tokens, treating as logged out")
		}
	}

	if accessErr != nil || refreshErr != nil || access == "" || refresh == "" {
		s.transition(func(cur *Session) { *cur = Session{Status: StatusUnauthenticated} })
		log.Debug().Msg("no persisted session")
		return s.Snapshot()
	}

	s.transition(func(cur *Session) {
		*cur = Session{
			Status:       StatusAuthenticated,
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    tokenExpiry(access),
		}
	})

	snap := s.Snapshot()
	log.Info().Time("expiresAt", snap.ExpiresAt).Msg("restored persisted session")
	return snap
}

// SetTokens publishes a new token pair and mirrors it to the secret store.
// An empty refresh keeps the current refresh token. Store failures are logged
// and otherwise ignored; the next Restore reflects whatever was persisted.
func (s *State) SetTokens(ctx context.Context, access, refresh string) {
	if access == "" {
		s.Clear(ctx)
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	var persistedRefresh string
	s.transition(func(cur *Session) {
		if refresh == "" {
			refresh = cur.RefreshToken
		}
		*cur = Session{
			Status:       StatusAuthenticated,
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    tokenExpiry(access),
		}
		persistedRefresh = refresh
	})

	if err := s.store.Set(ctx, AccessTokenKey, access); err != nil {
		log.Warn().Err(err).Msg("failed to persist access token")
	}
	if persistedRefresh == "" {
		if err := s.store.Delete(ctx, RefreshTokenKey); err != nil {
			log.Warn().Err(err).Msg("failed to remove refresh token")
		}
		return
	}
	if err := s.store.Set(ctx, RefreshTokenKey, persistedRefresh); err != nil {
		log.Warn().Err(err).Msg("failed to persist refresh token")
	}
}

// SetTokensIfRefresh is SetTokens guarded by a compare-and-set: the pair is
// published only while the session is still authenticated with
// expectedRefresh. It reports whether the pair was stored. A Clear or a new
// login that landed first is never overwritten.
func (s *State) SetTokensIfRefresh(ctx context.Context, expectedRefresh, access, refresh string) bool {
	if access == "" || expectedRefresh == "" {
		return false
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	swapped := false
	s.transition(func(cur *Session) {
		if cur.Status != StatusAuthenticated || cur.RefreshToken != expectedRefresh {
			return
		}
		if refresh == "" {
			refresh = expectedRefresh
		}
		*cur = Session{
			Status:       StatusAuthenticated,
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    tokenExpiry(access),
		}
		swapped = true
	})
	if !swapped {
		return false
	}

	if err := s.store.Set(ctx, AccessTokenKey, access); err != nil {
		log.Warn().Err(err).Msg("failed to persist access token")
	}
	if err := s.store.Set(ctx, RefreshTokenKey, refresh); err != nil {
		log.Warn().Err(err).Msg("failed to persist refresh token")
	}
	return true
}

// Clear forgets both tokens in memory and in the secret store.
// It is safe to call when already cleared.
func (s *State) Clear(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.transition(func(cur *Session) { *cur = Session{Status: StatusUnauthenticated} })

	for _, key := range []string{AccessTokenKey, RefreshTokenKey} {
		if err := s.store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to remove persisted token")
		}
	}
}

// Snapshot returns a copy of the current session.
func (s *State) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AccessToken returns the current access token, or "".
func (s *State) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

// RefreshToken returns the current refresh token, or "".
func (s *State) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.RefreshToken
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Status
}

// Subscribe registers fn to be called after every status change.
// Callbacks run synchronously on the goroutine that changed the status and
// must not call back into State mutators.
func (s *State) Subscribe(fn func(Status)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// transition applies mutate under the lock and notifies subscribers outside
// it when the status changed.
func (s *State) transition(mutate func(cur *Session)) {
	s.mu.Lock()
	before := s.current.Status
	mutate(&s.current)
	after := s.current.Status

	var notify []func(Status)
	if before != after {
		notify = make([]func(Status), 0, len(s.subs))
		for _, fn := range s.subs {
			notify = append(notify, fn)
		}
	}
	s.mu.Unlock()

	if before != after {
		log.Debug().Str("from", before.String()).Str("to", after.String()).Msg("session status changed")
	}
	for _, fn := range notify {
		fn(after)
	}
}
