package services

import (
	"time"

	"github.com/poofware/patrol-service/internal/models"
	"github.com/poofware/patrol-service/internal/utils"
)

// BuildScanPolicy derives the advisory policy for a checkpoint on a run.
// The geo constraint is only present when the checkpoint has lat, lon and
// radius; missing fields are never defaulted to zero.
func BuildScanPolicy(
	run *models.PatrolRun,
	cp *models.Checkpoint,
	membership *models.RouteCheckpoint,
) models.ScanPolicy {
	policy := models.ScanPolicy{
		RunID:        run.ID,
		CheckpointID: cp.ID,
		Order:        membership.Seq,
		TimeWindow: models.TimeWindow{
			MinOffsetSec: membership.MinOffsetSec,
			MaxOffsetSec: membership.MaxOffsetSec,
		},
	}
	if cp.HasGeo() {
		policy.GeoConstraint = &models.GeoConstraint{
			Lat:     *cp.Latitude,
			Lon:     *cp.Longitude,
			RadiusM: *cp.RadiusM,
		}
	}
	return policy
}

// EvaluateScan grades a scan against policy. Time is checked before geo;
// a scan without coordinates is never judged out of range.
func EvaluateScan(
	policy models.ScanPolicy,
	plannedStart time.Time,
	scannedAt time.Time,
	lat, lon *float64,
) models.ScanVerdictType {
	offset := scannedAt.Sub(plannedStart)
	if offset < time.Duration(policy.TimeWindow.MinOffsetSec)*time.Second {
		return models.ScanVerdictEarly
	}
	if offset > time.Duration(policy.TimeWindow.MaxOffsetSec)*time.Second {
		return models.ScanVerdictLate
	}

	if g := policy.GeoConstraint; g != nil && lat != nil && lon != nil {
		if utils.DistanceMeters(*lat, *lon, g.Lat, g.Lon) > g.RadiusM {
			return models.ScanVerdictOutOfRange
		}
	}
	return models.ScanVerdictOK
}

// findMembership returns the route entry for checkpoint, or nil.
func findMembership(list []*models.RouteCheckpoint, cp *models.Checkpoint) *models.RouteCheckpoint {
	for _, rc := range list {
		if rc.CheckpointID == cp.ID {
			return rc
		}
	}
	return nil
}
