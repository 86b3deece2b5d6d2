package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/utils"
)

// MinChallengeSecretLen is the minimum HMAC key size accepted.
const MinChallengeSecretLen = 32

// ChallengePayload holds the caller-supplied claims of a challenge.
type ChallengePayload struct {
	Org string
	Dev string
	CP  string
}

// ChallengeCodec signs and verifies compact HS256 challenge tokens.
type ChallengeCodec interface {
	// Issue stamps a fresh jti, iat=now and exp=now+ttl onto payload and signs it.
	Issue(payload ChallengePayload, ttl time.Duration) (string, error)

	// Verify checks the signature first and expiry second. Failures wrap
	// utils.ErrChallengeMalformed, utils.ErrChallengeSignature or
	// utils.ErrChallengeExpired.
	Verify(token string) (*models.ChallengeClaims, error)

	// ParseUnverified decodes the claims without checking the signature.
	// Nothing it returns may be trusted for authorization.
	ParseUnverified(token string) (*models.ChallengeClaims, error)
}

type hmacChallengeCodec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption customises a ChallengeCodec.
type CodecOption func(*hmacChallengeCodec)

// WithCodecClock overrides the codec's time source.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *hmacChallengeCodec) { c.now = now }
}

func NewChallengeCodec(secret []byte, opts ...CodecOption) (ChallengeCodec, error) {
	if len(secret) < MinChallengeSecretLen {
		return nil, fmt.Errorf("challenge secret must be at least %d bytes, got %d", MinChallengeSecretLen, len(secret))
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	c := &hmacChallengeCodec{
		secret: key,
		now:    time.Now,
		// Claims validation is skipped so the library never judges exp before
		// we know the signature is good; Verify checks expiry itself.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *hmacChallengeCodec) Issue(payload ChallengePayload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("challenge ttl must be positive, got %s", ttl)
	}
	now := c.now()
	claims := models.ChallengeClaims{
		Org: payload.Org,
		Dev: payload.Dev,
		CP:  payload.CP,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *hmacChallengeCodec) Verify(token string) (*models.ChallengeClaims, error) {
	claims := &models.ChallengeClaims{}
	tok, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", utils.ErrChallengeSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrChallengeMalformed, err)
	}
	if !tok.Valid {
		return nil, utils.ErrChallengeSignature
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti claim", utils.ErrChallengeMalformed)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", utils.ErrChallengeMalformed)
	}
	if !claims.ExpiresAt.Time.After(c.now()) {
		return nil, utils.ErrChallengeExpired
	}
	return claims, nil
}

func (c *hmacChallengeCodec) ParseUnverified(token string) (*models.ChallengeClaims, error) {
	claims := &models.ChallengeClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrChallengeMalformed, err)
	}
	return claims, nil
}
