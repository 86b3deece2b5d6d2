package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// ChallengeClaims is the payload of a scan challenge token.
// jti/iat/exp live in the embedded registered claims.
type ChallengeClaims struct {
	Org string `json:"org,omitempty"`
	Dev string `json:"dev,omitempty"`
	CP  string `json:"cp,omitempty"`
	jwt.RegisteredClaims
}
