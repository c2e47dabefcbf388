package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const SessionTokenKey contextKey = "session_token"

// BearerToken extracts the session token from the Authorization header and
// stores it in the request context. It does not validate the token; the
// analysis service decides whether the caller is authenticated, after input
// validation.
func BearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ParseAuthorization(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), SessionTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseAuthorization supports both "Bearer <token>" and "<token>" formats.
// A bare scheme with no credentials yields "".
func ParseAuthorization(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	if strings.EqualFold(fields[0], "bearer") {
		if len(fields) < 2 {
			return ""
		}
		return fields[1]
	}
	return strings.TrimSpace(header)
}

// GetSessionToken returns the token stored by BearerToken, or "".
func GetSessionToken(ctx context.Context) string {
	if tok, ok := ctx.Value(SessionTokenKey).(string); ok {
		return tok
	}
	return ""
}
