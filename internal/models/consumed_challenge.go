package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsumedChallenge is the durable witness that a challenge was redeemed.
// At most one row per JTI ever exists.
type ConsumedChallenge struct {
	JTI          string    `json:"jti"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	UsedAt       time.Time `json:"used_at"`
	DeviceID     string    `json:"device_id"`
	CheckpointID uuid.UUID `json:"checkpoint_id"`
}
