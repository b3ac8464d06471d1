package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pagebase/core/internal/apperr"
)

// AdminClaims is the JWT payload minted at bootstrap admin login.
type AdminClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies the single bootstrap-admin bearer token.
// Full user management (invites, roles, per-table RBAC) is out of scope per
// spec.md Non-goals — there is exactly one admin principal.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *TokenIssuer) Issue(email string) (string, error) {
	claims := AdminClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   email,
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.secret)
}

func (t *TokenIssuer) Verify(raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, apperr.Validation("invalid or expired admin token", nil)
	}
	return claims, nil
}

type ctxAdminKey struct{}

// RequireAdmin is applied to every mutating/admin-only route in internal/api.
// Loopback requests (127.0.0.1/::1, matching the teacher's dev-bypass
// convention) are allowed through without a token so cmd/server can be
// curled locally before a frontend exists.
func RequireAdmin(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isLoopback(r) {
				next.ServeHTTP(w, r)
				return
			}
			h := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || raw == "" {
				JSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized", "message": "missing bearer token"})
				return
			}
			claims, err := issuer.Verify(raw)
			if err != nil {
				JSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized", "message": err.Error()})
				return
			}
			ctx := context.WithValue(r.Context(), ctxAdminKey{}, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxAdminKey{}).(string); ok {
		return v
	}
	return ""
}

func isLoopback(r *http.Request) bool {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}
