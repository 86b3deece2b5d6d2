package repositories

import (
	"context"

	"github.com/poofware/patrol-service/internal/models"
)

// ScanEventRepository persists completed scans.
type ScanEventRepository interface {
	Create(ctx context.Context, ev *models.ScanEvent) error
}

type scanEventRepo struct {
	db DB
}

func NewScanEventRepository(db DB) ScanEventRepository {
	return &scanEventRepo{db: db}
}

func (r *scanEventRepo) Create(ctx context.Context, ev *models.ScanEvent) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO scan_events (
            id, patrol_run_id, checkpoint_id, user_id, scanned_at, latitude, longitude, verdict,
            created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
    `, ev.ID, ev.PatrolRunID, ev.CheckpointID, ev.UserID, ev.ScannedAt, ev.Latitude, ev.Longitude, string(ev.Verdict))
	return err
}
