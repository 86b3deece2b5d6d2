package repositories

import (
	"context"
	"fmt"
)

// Repositories is the set of repositories bound to one DB handle
// (the pool, or a single transaction).
type Repositories struct {
	Checkpoints        CheckpointRepository
	RouteCheckpoints   RouteCheckpointRepository
	PatrolRuns         PatrolRunRepository
	ConsumedChallenges ConsumedChallengeRepository
	ScanEvents         ScanEventRepository
}

// NewRepositories binds every repository to db.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Checkpoints:        NewCheckpointRepository(db),
		RouteCheckpoints:   NewRouteCheckpointRepository(db),
		PatrolRuns:         NewPatrolRunRepository(db),
		ConsumedChallenges: NewConsumedChallengeRepository(db),
		ScanEvents:         NewScanEventRepository(db),
	}
}

// UnitOfWork runs fn against repositories that all share one transaction.
// The transaction commits only if fn returns nil.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}

type pgUnitOfWork struct {
	db DB
}

func NewUnitOfWork(db DB) UnitOfWork {
	return &pgUnitOfWork{db: db}
}

func (u *pgUnitOfWork) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, repos *Repositories) error,
) (err error) {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
