// Package token inspects bearer tokens on the client side. Signature
// validation belongs to the backend; the client only needs the claims to
// display identity and to avoid opening a connection with a token that is
// already expired.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformed = errors.New("malformed token")

// Claims are the JWT claims the backend issues on login.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"rol,omitempty"`
}

// Info is the client-visible view of a bearer token.
type Info struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Inspect decodes a token without verifying its signature.
func Inspect(raw string) (*Info, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, ErrMalformed
	}

	info := &Info{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Expired reports whether the token's expiry has passed. Tokens without an
// exp claim are treated as non-expiring.
func (i *Info) Expired() bool {
	return !i.ExpiresAt.IsZero() && time.Now().After(i.ExpiresAt)
}
