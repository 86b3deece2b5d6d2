package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/poofware/patrol-service/internal/models"
)

// RouteCheckpointRepository exposes the ordered checkpoint list of a route.
type RouteCheckpointRepository interface {
	Create(ctx context.Context, rc *models.RouteCheckpoint) error
	// ListByRouteID returns memberships ordered by seq.
	ListByRouteID(ctx context.Context, routeID uuid.UUID) ([]*models.RouteCheckpoint, error)
}

type routeCheckpointRepo struct {
	db DB
}

func NewRouteCheckpointRepository(db DB) RouteCheckpointRepository {
	return &routeCheckpointRepo{db: db}
}

func (r *routeCheckpointRepo) Create(ctx context.Context, rc *models.RouteCheckpoint) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO route_checkpoints (route_id, checkpoint_id, seq, min_offset_sec, max_offset_sec)
        VALUES ($1,$2,$3,$4,$5)
    `, rc.RouteID, rc.CheckpointID, rc.Seq, rc.MinOffsetSec, rc.MaxOffsetSec)
	return err
}

func (r *routeCheckpointRepo) ListByRouteID(ctx context.Context, routeID uuid.UUID) ([]*models.RouteCheckpoint, error) {
	rows, err := r.db.Query(ctx, `
        SELECT route_id, checkpoint_id, seq, min_offset_sec, max_offset_sec
        FROM route_checkpoints
        WHERE route_id=$1
        ORDER BY seq ASC
    `, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RouteCheckpoint
	for rows.Next() {
		rc, err := scanRouteCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func scanRouteCheckpoint(row pgx.Row) (*models.RouteCheckpoint, error) {
	var rc models.RouteCheckpoint
	if err := row.Scan(&rc.RouteID, &rc.CheckpointID, &rc.Seq, &rc.MinOffsetSec, &rc.MaxOffsetSec); err != nil {
		return nil, err
	}
	return &rc, nil
}
