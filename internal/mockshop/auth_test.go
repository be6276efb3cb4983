package mockshop

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{JWTSecret: testSecret, BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func signClaims(t *testing.T, method jwt.SigningMethod, claims jwt.Claims, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestValidateAccessToken_RoundTrip(t *testing.T) {
	s := newTestServer(t)

	token, err := s.issueAccessToken("a001")
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	adminID, err := s.validateAccessToken(token)
	if err != nil {
		t.Fatalf("Expected valid token, got error: %v", err)
	}
	if adminID != "a001" {
		t.Errorf("Expected adminID=a001, got %s", adminID)
	}
}

func TestValidateAccessToken_ExpiredToken(t *testing.T) {
	s := newTestServer(t)

	token := signClaims(t, jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "a001",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, testSecret)

	if _, err := s.validateAccessToken(token); err == nil {
		t.Fatal("Expected expired token to be rejected")
	}
}

func TestValidateAccessToken_Rejections(t *testing.T) {
	s := newTestServer(t)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{
			name: "wrong secret",
			token: signClaims(t, jwt.SigningMethodHS256, accessClaims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "a001", ExpiresAt: exp},
			}, []byte("other-secret")),
		},
		{
			name: "wrong algorithm",
			token: signClaims(t, jwt.SigningMethodHS384, accessClaims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "a001", ExpiresAt: exp},
			}, testSecret),
		},
		{
			name: "wrong issuer",
			token: signClaims(t, jwt.SigningMethodHS256, accessClaims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", Subject: "a001", ExpiresAt: exp},
			}, testSecret),
		},
		{
			name: "missing exp",
			token: signClaims(t, jwt.SigningMethodHS256, accessClaims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "a001"},
			}, testSecret),
		},
		{
			name: "missing sub",
			token: signClaims(t, jwt.SigningMethodHS256, accessClaims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp},
			}, testSecret),
		},
		{
			name:  "garbage",
			token: "not.a.jwt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.validateAccessToken(tt.token); err == nil {
				t.Errorf("Expected token to be rejected")
			}
		})
	}
}

func TestExpireAccessTokens_RevokesOutstandingTokens(t *testing.T) {
	s := newTestServer(t)

	before, _ := s.issueAccessToken("a001")
	s.ExpireAccessTokens()
	after, _ := s.issueAccessToken("a001")

	if _, err := s.validateAccessToken(before); err == nil {
		t.Error("Expected token from previous generation to be rejected")
	}
	if _, err := s.validateAccessToken(after); err != nil {
		t.Errorf("Expected token from current generation to be valid: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := newTestServer(t)
	valid, _ := s.issueAccessToken("a001")

	var seen string
	handler := s.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AdminID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantAdmin  string
	}{
		{name: "no header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, wantAdmin: "a001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if seen != tt.wantAdmin {
				t.Errorf("Expected admin %q, got %q", tt.wantAdmin, seen)
			}
			if rec.Code == http.StatusUnauthorized {
				var body errorBody
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error != "unauthorized" {
					t.Errorf("Expected JSON unauthorized body, got %q (err=%v)", rec.Body.String(), err)
				}
			}
		})
	}
}
