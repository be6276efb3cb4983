package mockshop

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const adminIDKey contextKey = "adminId"

const tokenIssuer = "mockshop"

var errTokenRevoked = errors.New("token generation revoked")

// accessClaims are the claims of an access token. Gen ties the token to the
// server's token generation; bumping the generation expires every
// outstanding token at once.
type accessClaims struct {
	Gen int64 `json:"gen"`
	jwt.RegisteredClaims
}

// issueAccessToken signs a short-lived HS256 access token for the admin
func (s *Server) issueAccessToken(adminID string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Gen: s.gen.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   adminID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
}

// validateAccessToken verifies signature, issuer, expiry and generation and
// returns the admin id.
func (s *Server) validateAccessToken(raw string) (string, error) {
	var claims accessClaims
	keyFunc := func(*jwt.Token) (any, error) { return s.cfg.JWTSecret, nil }
	_, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if claims.Gen != s.gen.Load() {
		return "", errTokenRevoked
	}
	if claims.Subject == "" {
		return "", errors.New("token missing sub claim")
	}
	return claims.Subject, nil
}

// authenticate rejects requests without a valid bearer token and puts the
// admin id on the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		adminID, err := s.validateAccessToken(raw)
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("rejected access token")
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), adminIDKey, adminID)
		logger := log.Ctx(ctx).With().Str("adminId", adminID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}

// AdminID returns the authenticated admin id, "" if none
func AdminID(ctx context.Context) string {
	if id, ok := ctx.Value(adminIDKey).(string); ok {
		return id
	}
	return ""
}
