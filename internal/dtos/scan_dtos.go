package dtos

import (
	"time"

	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/models"
)

type StartScanRequest struct {
	CheckpointCode string `json:"checkpoint_code" validate:"required,max=128"`
}

type StartScanResponse struct {
	Challenge string            `json:"challenge"`
	Policy    models.ScanPolicy `json:"policy"`
}

type FinishScanRequest struct {
	Challenge string     `json:"challenge" validate:"required"`
	Lat       *float64   `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon       *float64   `json:"lon,omitempty" validate:"omitempty,longitude"`
	ScannedAt *time.Time `json:"scanned_at,omitempty"`
}

type FinishScanResponse struct {
	EventID uuid.UUID              `json:"event_id"`
	Verdict models.ScanVerdictType `json:"verdict"`
}
