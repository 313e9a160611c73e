// Package auth issues and verifies the access tokens a server accepts.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// Access levels carried in a token.
const (
	AccessFull     = "rw"
	AccessReadOnly = "ro"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the claims of a database access token. An empty Namespace
// grants access to every namespace.
type Claims struct {
	jwt.RegisteredClaims
	Namespace string `json:"ns,omitempty"`
	Access    string `json:"a,omitempty"`
}

// Allows reports whether the token grants access to namespace.
func (c *Claims) Allows(namespace string) bool {
	return c.Namespace == "" || c.Namespace == namespace
}

// ReadOnly reports whether the token forbids writes.
func (c *Claims) ReadOnly() bool {
	return c.Access == AccessReadOnly
}

// Issue signs a token for namespace valid for ttl. A zero ttl issues a
// token that never expires.
func Issue(secret []byte, subject, namespace, access string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Namespace: namespace,
		Access:    access,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return tokenString, nil
}

// Verify parses tokenString and checks its signature and expiry.
func Verify(secret []byte, tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// LoadSecretKey reads the signing key at path, generating and storing a
// random one if the file does not exist.
func LoadSecretKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read JWT secret key: %w", err)
	}
	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random JWT secret key: %w", err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to write JWT secret key: %w", err)
	}
	return key, nil
}

// WithClaims returns a context carrying verified claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// FromContext returns the claims stored by WithClaims, or nil.
func FromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}
