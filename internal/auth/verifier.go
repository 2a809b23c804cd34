// internal/auth/verifier.go
//
// Bearer-token verification for NextAuth-issued HS256 JWTs.
// The frontend signs tokens with NEXTAUTH_SECRET and puts the user id in
// "sub", the display name in "name" and the address in "email".

package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized covers malformed, unsigned, expired or incomplete tokens.
	ErrUnauthorized = errors.New("invalid authentication credentials")

	// ErrNotConfigured means no verification secret was provided.
	ErrNotConfigured = errors.New("JWT secret not configured")
)

// Identity is the verified caller.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Verifier checks tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret. An empty secret is accepted
// here and reported by Verify, so the process can still serve health checks.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Configured reports whether a secret is present.
func (v *Verifier) Configured() bool { return len(v.secret) > 0 }

// Verify decodes token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	if !v.Configured() {
		return Identity{}, ErrNotConfigured
	}
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	if id == "" || name == "" || email == "" {
		return Identity{}, fmt.Errorf("%w: missing sub, name or email claim", ErrUnauthorized)
	}
	return Identity{UserID: id, Username: name, Email: email}, nil
}
