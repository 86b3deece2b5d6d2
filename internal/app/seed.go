package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/repositories"
	"github.com/poofware/patrol-service/internal/utils"
)

// Fixed ids so repeated seeding is idempotent.
var (
	SeedOrganizationID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	SeedSiteID         = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	SeedRouteID        = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	SeedCheckpointID   = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	SeedPatrolRunID    = uuid.MustParse("55555555-5555-5555-5555-555555555555")
)

const SeedCheckpointCode = "CP-1"

/*
SeedAllTestData creates one organization's checkpoint CP-1 at seq 1 on a
route with an in-progress patrol run starting now. Rows that already exist
are left alone.
*/
func SeedAllTestData(ctx context.Context, repos *repositories.Repositories) error {
	if existing, err := repos.Checkpoints.GetByCode(ctx, SeedCheckpointCode); err != nil {
		return fmt.Errorf("check existing seed checkpoint: %w", err)
	} else if existing != nil {
		utils.Logger.Info("seed data already present; skipping seeding")
		return nil
	}

	lat, lon, radius := 33.5186, -86.8104, 50.0
	cp := &models.Checkpoint{
		ID:             SeedCheckpointID,
		OrganizationID: SeedOrganizationID,
		SiteID:         SeedSiteID,
		Code:           SeedCheckpointCode,
		Name:           "Main gate",
		Latitude:       &lat,
		Longitude:      &lon,
		RadiusM:        &radius,
	}
	if err := repos.Checkpoints.Create(ctx, cp); err != nil && !repositories.IsUniqueViolation(err) {
		return fmt.Errorf("seed checkpoint: %w", err)
	}

	rc := &models.RouteCheckpoint{
		RouteID:      SeedRouteID,
		CheckpointID: SeedCheckpointID,
		Seq:          1,
		MinOffsetSec: 0,
		MaxOffsetSec: 3600,
	}
	if err := repos.RouteCheckpoints.Create(ctx, rc); err != nil && !repositories.IsUniqueViolation(err) {
		return fmt.Errorf("seed route checkpoint: %w", err)
	}

	now := time.Now().UTC()
	run := &models.PatrolRun{
		ID:             SeedPatrolRunID,
		OrganizationID: SeedOrganizationID,
		RouteID:        SeedRouteID,
		Status:         models.PatrolRunStatusInProgress,
		PlannedStart:   now,
		PlannedEnd:     now.Add(8 * time.Hour),
	}
	if err := repos.PatrolRuns.Create(ctx, run); err != nil && !repositories.IsUniqueViolation(err) {
		return fmt.Errorf("seed patrol run: %w", err)
	}

	utils.Logger.WithField("org_id", SeedOrganizationID).Info("Seeded checkpoint CP-1 with an in-progress patrol run")
	return nil
}
