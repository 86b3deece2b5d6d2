package models

import (
	"time"

	"github.com/google/uuid"
)

type ScanVerdictType string

const (
	ScanVerdictOK         ScanVerdictType = "ok"
	ScanVerdictEarly      ScanVerdictType = "early"
	ScanVerdictLate       ScanVerdictType = "late"
	ScanVerdictOutOfRange ScanVerdictType = "out_of_range"
)

// ScanEvent records one completed checkpoint scan.
type ScanEvent struct {
	ID           uuid.UUID       `json:"id"`
	PatrolRunID  uuid.UUID       `json:"patrol_run_id"`
	CheckpointID uuid.UUID       `json:"checkpoint_id"`
	UserID       uuid.UUID       `json:"user_id"`
	ScannedAt    time.Time       `json:"scanned_at"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	Verdict      ScanVerdictType `json:"verdict"`
	CreatedAt    time.Time       `json:"created_at"`
}
