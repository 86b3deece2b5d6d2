package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/poofware/patrol-service/internal/models"
)

// ConsumedChallengeRepository is the replay ledger. Rows are insert-only on
// the hot path; only the hygiene job deletes, and only long-expired rows.
type ConsumedChallengeRepository interface {
	// Insert attempts the atomic insert keyed by jti. It returns false, nil
	// when a row for the jti already exists.
	Insert(ctx context.Context, c *models.ConsumedChallenge) (bool, error)
	Exists(ctx context.Context, jti string) (bool, error)
	GetByJTI(ctx context.Context, jti string) (*models.ConsumedChallenge, error)
	// DeleteExpiredBefore removes rows whose expires_at is before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type consumedChallengeRepo struct {
	db DB
}

func NewConsumedChallengeRepository(db DB) ConsumedChallengeRepository {
	return &consumedChallengeRepo{db: db}
}

func (r *consumedChallengeRepo) Insert(ctx context.Context, c *models.ConsumedChallenge) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        INSERT INTO consumed_challenges (jti, issued_at, expires_at, used_at, device_id, checkpoint_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (jti) DO NOTHING
    `, c.JTI, c.IssuedAt, c.ExpiresAt, c.UsedAt, c.DeviceID, c.CheckpointID)
	if err != nil {
		// Same outcome as ON CONFLICT: the jti is already in the ledger.
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *consumedChallengeRepo) Exists(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM consumed_challenges WHERE jti=$1)`, jti).Scan(&exists)
	return exists, err
}

func (r *consumedChallengeRepo) GetByJTI(ctx context.Context, jti string) (*models.ConsumedChallenge, error) {
	row := r.db.QueryRow(ctx, `
        SELECT jti, issued_at, expires_at, used_at, device_id, checkpoint_id
        FROM consumed_challenges
        WHERE jti=$1
    `, jti)
	var c models.ConsumedChallenge
	err := row.Scan(&c.JTI, &c.IssuedAt, &c.ExpiresAt, &c.UsedAt, &c.DeviceID, &c.CheckpointID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consumedChallengeRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM consumed_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
