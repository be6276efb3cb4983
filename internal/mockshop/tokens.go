package mockshop

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// refreshToken is an opaque, single-use credential
type refreshToken struct {
	Token     string
	AdminID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenStore manages issued refresh tokens. Every refresh revokes the
// presented token and issues a new one.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]refreshToken // key: token
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	return &TokenStore{
		tokens: make(map[string]refreshToken),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue generates a new refresh token for the admin
func (s *TokenStore) Issue(adminID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	tok := refreshToken{
		Token:     uuid.New().String(),
		AdminID:   adminID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.tokens[tok.Token] = tok

	// Clean up expired tokens opportunistically
	s.cleanupExpiredLocked()

	return tok.Token
}

// Rotate revokes token and issues a replacement for the same admin.
// Returns false if the token is unknown, revoked or expired.
func (s *TokenStore) Rotate(token string) (adminID, next string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, exists := s.tokens[token]
	if !exists {
		return "", "", false
	}
	delete(s.tokens, token)

	now := s.now().UTC()
	if now.After(tok.ExpiresAt) {
		return "", "", false
	}

	replacement := refreshToken{
		Token:     uuid.New().String(),
		AdminID:   tok.AdminID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.tokens[replacement.Token] = replacement

	return tok.AdminID, replacement.Token, true
}

// Valid reports whether token is currently usable
func (s *TokenStore) Valid(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, exists := s.tokens[token]
	return exists && !s.now().UTC().After(tok.ExpiresAt)
}

// Revoke removes a single token
func (s *TokenStore) Revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.tokens[token]
	if exists {
		delete(s.tokens, token)
	}
	return exists
}

// RevokeAdmin removes all refresh tokens of an admin.
// Returns the number of tokens deleted.
func (s *TokenStore) RevokeAdmin(adminID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for token, tok := range s.tokens {
		if tok.AdminID == adminID {
			delete(s.tokens, token)
			count++
		}
	}
	return count
}

// Len returns the number of live tokens
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// cleanupExpiredLocked removes expired tokens (caller must hold write lock)
func (s *TokenStore) cleanupExpiredLocked() {
	now := s.now().UTC()
	for token, tok := range s.tokens {
		if now.After(tok.ExpiresAt) {
			delete(s.tokens, token)
		}
	}
}
