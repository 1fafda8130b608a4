package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt returns when an access token expires: now+expiresIn when the token endpoint reported
// a lifetime, otherwise the token's JWT exp claim, otherwise the zero time.
func ExpiresAt(accessToken string, expiresIn int64, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	return TokenExpiry(accessToken)
}

// TokenExpiry reads the exp claim of a JWT access token without verifying its signature.
// Opaque tokens and tokens without exp yield the zero time.
func TokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
