package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/poofware/patrol-service/internal/models"
)

// CheckpointRepository is a read-mostly view of checkpoints.
type CheckpointRepository interface {
	Create(ctx context.Context, c *models.Checkpoint) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Checkpoint, error)
	// GetByCode returns nil, nil when no checkpoint carries the code.
	GetByCode(ctx context.Context, code string) (*models.Checkpoint, error)
}

type checkpointRepo struct {
	db DB
}

func NewCheckpointRepository(db DB) CheckpointRepository {
	return &checkpointRepo{db: db}
}

func (r *checkpointRepo) Create(ctx context.Context, c *models.Checkpoint) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO checkpoints (
            id, organization_id, site_id, code, name, latitude, longitude, radius_m,
            created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
    `, c.ID, c.OrganizationID, c.SiteID, c.Code, c.Name, c.Latitude, c.Longitude, c.RadiusM)
	return err
}

func (r *checkpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Checkpoint, error) {
	row := r.db.QueryRow(ctx, baseSelectCheckpoint()+" WHERE id=$1", id)
	return scanCheckpoint(row)
}

func (r *checkpointRepo) GetByCode(ctx context.Context, code string) (*models.Checkpoint, error) {
	row := r.db.QueryRow(ctx, baseSelectCheckpoint()+" WHERE code=$1", code)
	return scanCheckpoint(row)
}

func baseSelectCheckpoint() string {
	return `
        SELECT
            id, organization_id, site_id, code, name, latitude, longitude, radius_m,
            created_at, updated_at
        FROM checkpoints`
}

func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var c models.Checkpoint
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.SiteID, &c.Code, &c.Name,
		&c.Latitude, &c.Longitude, &c.RadiusM,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
