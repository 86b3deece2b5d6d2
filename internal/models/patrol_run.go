package models

import (
	"time"

	"github.com/google/uuid"
)

type PatrolRunStatusType string

const (
	PatrolRunStatusPending    PatrolRunStatusType = "pending"
	PatrolRunStatusInProgress PatrolRunStatusType = "in_progress"
	PatrolRunStatusCompleted  PatrolRunStatusType = "completed"
	PatrolRunStatusCanceled   PatrolRunStatusType = "canceled"
)

// IsActive reports whether scans may be recorded against a run in this status.
func (s PatrolRunStatusType) IsActive() bool {
	return s == PatrolRunStatusPending || s == PatrolRunStatusInProgress
}

// PatrolRun is one scheduled traversal of a route.
type PatrolRun struct {
	ID             uuid.UUID           `json:"id"`
	OrganizationID uuid.UUID           `json:"organization_id"`
	RouteID        uuid.UUID           `json:"route_id"`
	Status         PatrolRunStatusType `json:"status"`
	PlannedStart   time.Time           `json:"planned_start"`
	PlannedEnd     time.Time           `json:"planned_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
