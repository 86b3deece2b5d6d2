package services

import (
	"context"
	"fmt"

	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/repositories"
	"github.com/poofware/patrol-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// ConsumeResult is the outcome of a ledger consumption attempt.
type ConsumeResult int

const (
	Consumed ConsumeResult = iota + 1
	AlreadyConsumed
)

func (r ConsumeResult) String() string {
	switch r {
	case Consumed:
		return "consumed"
	case AlreadyConsumed:
		return "already_consumed"
	default:
		return "unknown"
	}
}

// ReplayGuard records a jti as consumed exactly once.
type ReplayGuard interface {
	TryConsume(ctx context.Context, rec *models.ConsumedChallenge) (ConsumeResult, error)
}

type ledgerReplayGuard struct {
	ledger   repositories.ConsumedChallengeRepository
	cache    repositories.ConsumedChallengeCache
	fastPath bool
}

// NewLedgerReplayGuard builds a guard on the consumed_challenges ledger.
// cache may be nil. fastPath enables a SELECT EXISTS probe before the insert.
// Neither shortcut can produce Consumed; only the insert can.
func NewLedgerReplayGuard(
	ledger repositories.ConsumedChallengeRepository,
	cache repositories.ConsumedChallengeCache,
	fastPath bool,
) ReplayGuard {
	return &ledgerReplayGuard{ledger: ledger, cache: cache, fastPath: fastPath}
}

func (g *ledgerReplayGuard) TryConsume(ctx context.Context, rec *models.ConsumedChallenge) (ConsumeResult, error) {
	if g.cache != nil {
		hit, err := g.cache.Contains(ctx, rec.JTI)
		if err != nil {
			utils.Logger.WithError(err).WithField("jti", rec.JTI).Warn("replay cache lookup failed; falling through to ledger")
		} else if hit {
			return AlreadyConsumed, nil
		}
	}

	if g.fastPath {
		exists, err := g.ledger.Exists(ctx, rec.JTI)
		if err != nil {
			return 0, fmt.Errorf("ledger exists check: %w", err)
		}
		if exists {
			return AlreadyConsumed, nil
		}
	}

	inserted, err := g.ledger.Insert(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("ledger insert: %w", err)
	}
	if !inserted {
		utils.Logger.WithFields(logrus.Fields{
			"jti":           rec.JTI,
			"checkpoint_id": rec.CheckpointID,
			"device_id":     rec.DeviceID,
		}).Info("ledger insert conflicted; challenge already consumed")
		return AlreadyConsumed, nil
	}
	return Consumed, nil
}
