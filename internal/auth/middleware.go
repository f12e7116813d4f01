package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// TokenKey is the context key for the raw bearer token.
const TokenKey = contextKey("authToken")

// TokenCookieName is the cookie set on login.
const TokenCookieName = "token"

// ExtractToken reads the bearer token from the Authorization header,
// falling back to the token cookie.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// TokenMiddleware rejects requests without a token and passes the raw token
// down via context. Resolution happens in the services so every operation
// authenticates the same way.
func TokenMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := ExtractToken(r)
			if tokenStr == "" {
				http.Error(w, "Missing auth token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), TokenKey, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext returns the token stored by TokenMiddleware.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenKey).(string)
	return token
}
