package core

import (
	"github.com/golang-jwt/jwt/v5"
	"time"
)

// TokenExpiry reads the exp claim of a daemon token. The signature is not
// checked: only the daemon holds the key.
func TokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
