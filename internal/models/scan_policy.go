package models

import "github.com/google/uuid"

// TimeWindow is the allowed scan offset, in seconds, from the run's planned start.
type TimeWindow struct {
	MinOffsetSec int `json:"min_offset_sec"`
	MaxOffsetSec int `json:"max_offset_sec"`
}

// GeoConstraint is a circle around the checkpoint the scan should fall in.
type GeoConstraint struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	RadiusM float64 `json:"radius_m"`
}

// ScanPolicy is advisory scan metadata derived from the active run and the
// checkpoint's route membership. It is not persisted.
type ScanPolicy struct {
	RunID         uuid.UUID      `json:"run_id"`
	CheckpointID  uuid.UUID      `json:"checkpoint_id"`
	Order         int            `json:"order"`
	TimeWindow    TimeWindow     `json:"time_window"`
	GeoConstraint *GeoConstraint `json:"geo_constraint,omitempty"`
}
