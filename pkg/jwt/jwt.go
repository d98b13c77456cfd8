// Package jwt reads claims from access tokens issued by the backend. Tokens are
// never verified client side; the backend remains the only authority.
package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned for tokens that are not JWTs.
var ErrOpaqueToken = errors.New("token is not a JWT")

// Claims is the subset of token claims the client cares about.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carries an exp claim.
func (c *Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Expired reports whether the token is expired at now.
func (c *Claims) Expired(now time.Time) bool {
	return c.HasExpiry() && !now.Before(c.ExpiresAt)
}

// ExpiresIn returns the remaining lifetime at now, zero once expired.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if !c.HasExpiry() || c.Expired(now) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Inspect parses token without verifying its signature.
func Inspect(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrOpaqueToken
	}

	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &registered); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims := &Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// Redact returns a short prefix of token suitable for logs.
func Redact(token string) string {
	const keep = 6
	if len(token) <= keep {
		return strings.Repeat("*", len(token))
	}
	return token[:keep] + "…"
}
