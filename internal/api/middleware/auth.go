// Package middleware authenticates API requests with access tokens issued by
// the identity service.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/storefront-orders/internal/auth"
)

// TokenCookie is the cookie browsers carry the access token in.
const TokenCookie = "access_token"

// TokenValidator checks an access token and returns its claims.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

type claimsKey struct{}

// WithClaims stores the caller's claims in ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims stored by Authenticate.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// writeAuthError uses the same body shape as the API error responses.
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

// accessToken reads the token cookie, falling back to a Bearer header.
func accessToken(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate rejects requests without a valid access token and puts the
// token's claims in the request context.
func Authenticate(tokens TokenValidator) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			claims, err := tokens.ValidateAccessToken(token)
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, auth.ErrExpiredToken) {
					code = "token_expired"
				}
				logger.DebugContext(r.Context(), "token rejected", "path", r.URL.Path, "error", err)
				writeAuthError(w, http.StatusUnauthorized, code, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin lets through only callers holding the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if !claims.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
