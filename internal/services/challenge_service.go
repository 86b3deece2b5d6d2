package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultChallengeTTL applies when Issue is called with ttl <= 0.
const DefaultChallengeTTL = 60 * time.Second

// ChallengeContext is the (organization, device, checkpoint) triple a
// challenge is bound to.
type ChallengeContext struct {
	OrgID        uuid.UUID
	DeviceID     string
	CheckpointID uuid.UUID
}

// OutcomeKind tags a ChallengeOutcome.
type OutcomeKind int

const (
	OutcomeValid OutcomeKind = iota + 1
	OutcomeInvalid
	OutcomeReplay
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// Outcome reasons.
const (
	ReasonInvalidSignature   = "invalid signature"
	ReasonMalformed          = "malformed"
	ReasonExpired            = "expired"
	ReasonInvalidOrg         = "missing/invalid org claim"
	ReasonInvalidDevice      = "missing/invalid dev claim"
	ReasonInvalidCheckpoint  = "missing/invalid cp claim"
	ReasonOrgMismatch        = "org mismatch"
	ReasonDeviceMismatch     = "device mismatch"
	ReasonCheckpointMismatch = "checkpoint mismatch"
	ReasonAlreadyUsed        = "already used"
)

// ChallengeOutcome is the result of ValidateAndConsume. Invalid and Replay
// are ordinary outcomes, not errors.
type ChallengeOutcome struct {
	Kind   OutcomeKind
	JTI    string
	Reason string

	// Set when the signature verified.
	Claims *models.ChallengeClaims
}

func (o ChallengeOutcome) IsValid() bool { return o.Kind == OutcomeValid }

func invalid(reason string, claims *models.ChallengeClaims) ChallengeOutcome {
	out := ChallengeOutcome{Kind: OutcomeInvalid, Reason: reason, Claims: claims}
	if claims != nil {
		out.JTI = claims.ID
	}
	return out
}

// ChallengeService issues challenges and redeems them at most once.
type ChallengeService interface {
	Issue(ctx context.Context, cc ChallengeContext, ttl time.Duration) (string, error)

	// ValidateAndConsume returns an error only when the ledger itself fails.
	ValidateAndConsume(ctx context.Context, token string, expected ChallengeContext) (ChallengeOutcome, error)

	// ParseUnverified exposes the claims of a token without trusting them.
	ParseUnverified(token string) (*models.ChallengeClaims, error)

	// WithReplayGuard returns a copy that consumes through g, typically a
	// guard bound to the caller's transaction.
	WithReplayGuard(g ReplayGuard) ChallengeService
}

type challengeService struct {
	codec      ChallengeCodec
	guard      ReplayGuard
	defaultTTL time.Duration
	now        func() time.Time
}

func NewChallengeService(codec ChallengeCodec, guard ReplayGuard, defaultTTL time.Duration) ChallengeService {
	if defaultTTL <= 0 {
		defaultTTL = DefaultChallengeTTL
	}
	return &challengeService{
		codec:      codec,
		guard:      guard,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (s *challengeService) WithReplayGuard(g ReplayGuard) ChallengeService {
	cp := *s
	cp.guard = g
	return &cp
}

func (s *challengeService) ParseUnverified(token string) (*models.ChallengeClaims, error) {
	return s.codec.ParseUnverified(token)
}

func (s *challengeService) Issue(ctx context.Context, cc ChallengeContext, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.codec.Issue(ChallengePayload{
		Org: cc.OrgID.String(),
		Dev: cc.DeviceID,
		CP:  cc.CheckpointID.String(),
	}, ttl)
}

func (s *challengeService) ValidateAndConsume(
	ctx context.Context,
	token string,
	expected ChallengeContext,
) (ChallengeOutcome, error) {
	// 1-2) signature, then expiry
	claims, err := s.codec.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrChallengeExpired):
			return invalid(ReasonExpired, nil), nil
		case errors.Is(err, utils.ErrChallengeSignature):
			return invalid(ReasonInvalidSignature, nil), nil
		default:
			return invalid(ReasonMalformed, nil), nil
		}
	}

	// 3) claim presence / format
	orgID, err := uuid.Parse(claims.Org)
	if err != nil {
		return invalid(ReasonInvalidOrg, claims), nil
	}
	if claims.Dev == "" {
		return invalid(ReasonInvalidDevice, claims), nil
	}
	cpID, err := uuid.Parse(claims.CP)
	if err != nil {
		return invalid(ReasonInvalidCheckpoint, claims), nil
	}

	// 4) context binding
	if orgID != expected.OrgID {
		return invalid(ReasonOrgMismatch, claims), nil
	}
	if claims.Dev != expected.DeviceID {
		return invalid(ReasonDeviceMismatch, claims), nil
	}
	if cpID != expected.CheckpointID {
		return invalid(ReasonCheckpointMismatch, claims), nil
	}

	// 5) at-most-once consumption
	rec := &models.ConsumedChallenge{
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
		UsedAt:       s.now().UTC(),
		DeviceID:     claims.Dev,
		CheckpointID: cpID,
	}
	if claims.IssuedAt != nil {
		rec.IssuedAt = claims.IssuedAt.Time
	}
	res, err := s.guard.TryConsume(ctx, rec)
	if err != nil {
		return ChallengeOutcome{}, err
	}
	if res == AlreadyConsumed {
		utils.Logger.WithFields(logrus.Fields{
			"jti":           claims.ID,
			"org_id":        orgID,
			"checkpoint_id": cpID,
		}).Warn("challenge replay rejected")
		return ChallengeOutcome{Kind: OutcomeReplay, JTI: claims.ID, Reason: ReasonAlreadyUsed, Claims: claims}, nil
	}
	return ChallengeOutcome{Kind: OutcomeValid, JTI: claims.ID, Claims: claims}, nil
}
