package models

import "github.com/google/uuid"

// RouteCheckpoint is the ordered membership of a checkpoint in a route,
// with the allowed offset window relative to the run's planned start.
type RouteCheckpoint struct {
	RouteID      uuid.UUID `json:"route_id"`
	CheckpointID uuid.UUID `json:"checkpoint_id"`
	Seq          int       `json:"seq"`
	MinOffsetSec int       `json:"min_offset_sec"`
	MaxOffsetSec int       `json:"max_offset_sec"`
}
