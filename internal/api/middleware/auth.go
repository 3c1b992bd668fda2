package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/identity"
)

type contextKey string

const (
	IdentityIDKey contextKey = "identity_id"
	EmailKey      contextKey = "email"
	// CookieAuthKey marks requests authenticated by the session cookie.
	CookieAuthKey contextKey = "cookie_auth"
)

// TokenCookie is the session cookie set at login and signup.
const TokenCookie = "token"

// Auth resolves the caller's identity. Roles are not taken from the token;
// every operation re-reads the caller's membership from the store.
func Auth(identities *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := extractToken(r)

			ident, err := identities.CurrentIdentity(r.Context(), token)
			if err != nil {
				kind := apperr.KindOf(err)
				writeError(w, apperr.HTTPStatus(kind), apperr.Message(err), kind)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, IdentityIDKey, ident.ID)
			ctx = context.WithValue(ctx, EmailKey, ident.Email)
			ctx = context.WithValue(ctx, CookieAuthKey, fromCookie)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer "), false
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func GetIdentityID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(IdentityIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func GetEmail(ctx context.Context) string {
	if email, ok := ctx.Value(EmailKey).(string); ok {
		return email
	}
	return ""
}

func isCookieAuth(ctx context.Context) bool {
	v, _ := ctx.Value(CookieAuthKey).(bool)
	return v
}

func writeError(w http.ResponseWriter, status int, message string, kind apperr.Kind) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"kind":  string(kind),
	})
}
