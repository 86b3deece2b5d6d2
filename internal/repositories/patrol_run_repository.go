package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/poofware/patrol-service/internal/models"
)

// PatrolRunRepository resolves patrol runs.
type PatrolRunRepository interface {
	Create(ctx context.Context, run *models.PatrolRun) error
	// GetActiveByOrganization returns the org's active run (pending or
	// in_progress). When several are active the earliest planned_start wins,
	// ties broken by id. Returns nil, nil when none is active.
	GetActiveByOrganization(ctx context.Context, orgID uuid.UUID) (*models.PatrolRun, error)
}

type patrolRunRepo struct {
	db DB
}

func NewPatrolRunRepository(db DB) PatrolRunRepository {
	return &patrolRunRepo{db: db}
}

func (r *patrolRunRepo) Create(ctx context.Context, run *models.PatrolRun) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO patrol_runs (
            id, organization_id, route_id, status, planned_start, planned_end,
            created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
    `, run.ID, run.OrganizationID, run.RouteID, string(run.Status), run.PlannedStart, run.PlannedEnd)
	return err
}

func (r *patrolRunRepo) GetActiveByOrganization(ctx context.Context, orgID uuid.UUID) (*models.PatrolRun, error) {
	row := r.db.QueryRow(ctx, baseSelectPatrolRun()+`
        WHERE organization_id=$1 AND status IN ($2, $3)
        ORDER BY planned_start ASC, id ASC
        LIMIT 1`,
		orgID, string(models.PatrolRunStatusPending), string(models.PatrolRunStatusInProgress),
	)
	return scanPatrolRun(row)
}

func baseSelectPatrolRun() string {
	return `
        SELECT
            id, organization_id, route_id, status, planned_start, planned_end,
            created_at, updated_at
        FROM patrol_runs`
}

func scanPatrolRun(row pgx.Row) (*models.PatrolRun, error) {
	var run models.PatrolRun
	var status string
	err := row.Scan(
		&run.ID, &run.OrganizationID, &run.RouteID, &status,
		&run.PlannedStart, &run.PlannedEnd, &run.CreatedAt, &run.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Status = models.PatrolRunStatusType(status)
	return &run, nil
}
