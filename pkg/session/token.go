package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry decodes the bearer token as a JWT, without verifying it, and
// returns its expiry. ok is false for opaque tokens or tokens without exp.
// The result is informational only and never affects IsAuthenticated.
func (s Session) TokenExpiry() (exp time.Time, ok bool) {
	if s.Token == "" {
		return time.Time{}, false
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// MaskedToken returns the bearer token with all but its first and last four
// characters hidden, for display and logs.
func (s Session) MaskedToken() string {
	switch {
	case s.Token == "":
		return ""
	case len(s.Token) <= 8:
		return "****"
	}
	return s.Token[:4] + "****" + s.Token[len(s.Token)-4:]
}
