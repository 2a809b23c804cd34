package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// ctxUserKey is the context key type for storing the Identity.
type ctxUserKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, id)
}

// FromContext returns the identity placed by RequireAuth.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxUserKey{}).(Identity)
	return id, ok
}

// bearer extracts the token from "Authorization: Bearer <token>".
func bearer(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}

// RequireAuth enforces a valid bearer token and injects the Identity into the
// request context. The token itself is never logged.
func RequireAuth(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(bearer(r))
			if errors.Is(err, ErrNotConfigured) {
				log.Error().Str("path", r.URL.Path).Msg("JWT secret not configured")
				http.Error(w, `{"error":"JWT secret not configured"}`, http.StatusInternalServerError)
				return
			}
			if err != nil {
				log.Info().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("rejected bearer token")
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, `{"error":"Invalid authentication credentials"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
