package middleware

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/utils"
)

// TokenIssuer identifies the service that issues access tokens.
const TokenIssuer = "Patrol"

// AccessClaims is the principal carried by a validated access token.
type AccessClaims struct {
	UserID   uuid.UUID
	OrgID    uuid.UUID
	Role     utils.RoleType
	DeviceID string
}

// ValidateToken checks the token's RS256 signature, expiry, issuer and, when the
// token carries a device_id claim, that it matches the request's X-Device-ID.
func ValidateToken(tokenString string, publicKey *rsa.PublicKey, deviceID string) (*AccessClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return publicKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	// ─── Standard claim checks ────────────────────────────────────────────────────
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, errors.New("missing expiration claim")
	}
	if time.Unix(int64(exp), 0).Before(time.Now()) {
		return nil, jwt.ErrTokenExpired
	}

	iss, ok := claims["iss"].(string)
	if !ok {
		return nil, errors.New("missing issuer claim")
	}
	if iss != TokenIssuer {
		return nil, errors.New("invalid token issuer")
	}

	// ─── Principal ────────────────────────────────────────────────────────────────
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, errors.New("missing or invalid subject")
	}
	org, _ := claims["org"].(string)
	orgID, err := uuid.Parse(org)
	if err != nil {
		return nil, errors.New("missing or invalid org claim")
	}
	roleStr, _ := claims["role"].(string)
	role, err := utils.ParseRole(roleStr)
	if err != nil {
		return nil, err
	}

	// ─── Device binding ───────────────────────────────────────────────────────────
	if devClaim, has := claims["device_id"].(string); has && devClaim != "" {
		if devClaim != deviceID {
			return nil, errors.New("device_id mismatch")
		}
	}

	return &AccessClaims{
		UserID:   userID,
		OrgID:    orgID,
		Role:     role,
		DeviceID: deviceID,
	}, nil
}
