package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the client can learn from an access token without the
// signing key.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now. Tokens without
// an expiry never expire locally.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Inspect decodes the claims of a JWT without verifying its signature. The
// result is informational only; the service stays the authority on validity.
func Inspect(token string) (TokenInfo, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("inspect token: %w", err)
	}

	info := TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Subject returns the session identity of the held access token, or "" when
// unauthenticated or the token is opaque.
func (s *Store) Subject() string {
	c, ok := s.Current()
	if !ok {
		return ""
	}
	info, err := Inspect(c.AccessToken)
	if err != nil {
		return ""
	}
	return info.Subject
}
