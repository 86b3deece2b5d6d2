package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/poofware/patrol-service/internal/repositories"
	"github.com/poofware/patrol-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// One retry on transient network errors (EOF, closed connection).
const cleanupRetryDelay = 3 * time.Second

// LedgerCleanupService prunes consumed_challenges rows whose challenge
// expired longer ago than the retention window.
type LedgerCleanupService interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type ledgerCleanupService struct {
	ledger     repositories.ConsumedChallengeRepository
	retention  time.Duration
	retryDelay time.Duration
	now        func() time.Time
}

func NewLedgerCleanupService(ledger repositories.ConsumedChallengeRepository, retention time.Duration) LedgerCleanupService {
	return &ledgerCleanupService{
		ledger:     ledger,
		retention:  retention,
		retryDelay: cleanupRetryDelay,
		now:        time.Now,
	}
}

// runWithRetry executes op(ctx) and retries once after a short delay when
// the error looks like a dropped connection.
func (s *ledgerCleanupService) runWithRetry(ctx context.Context, op func(context.Context) error) error {
	if err := op(ctx); err != nil {
		if errors.Is(err, io.EOF) || pgconn.SafeToRetry(err) ||
			strings.Contains(err.Error(), "connection was closed") {
			utils.Logger.WithError(err).Warn("ledger cleanup hit transient DB error; retrying once")
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			return op(ctx)
		}
		return err
	}
	return nil
}

func (s *ledgerCleanupService) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	var deleted int64
	err := s.runWithRetry(ctx, func(ctx context.Context) error {
		n, err := s.ledger.DeleteExpiredBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if err != nil {
		utils.Logger.WithError(err).Error("Failed to cleanup consumed_challenges")
		return 0, err
	}

	utils.Logger.WithFields(logrus.Fields{
		"deleted": deleted,
		"cutoff":  cutoff,
	}).Info("Ledger cleanup completed")
	return deleted, nil
}
