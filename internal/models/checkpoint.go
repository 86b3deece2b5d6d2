package models

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint is a physical scan point (QR/NFC tag) at a site.
type Checkpoint struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	SiteID         uuid.UUID `json:"site_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`

	// Geo fields are optional; a geo constraint only exists when all three are set.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	RadiusM   *float64 `json:"radius_m,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasGeo reports whether latitude, longitude and radius are all present.
func (c *Checkpoint) HasGeo() bool {
	return c.Latitude != nil && c.Longitude != nil && c.RadiusM != nil
}
