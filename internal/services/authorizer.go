package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/poofware/patrol-service/internal/utils"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	UserID   uuid.UUID
	OrgID    uuid.UUID
	Role     utils.RoleType
	DeviceID string
}

// Authorizer is the role/org gate. Only its pass/fail outcome matters here.
type Authorizer interface {
	Authorize(ctx context.Context, caller Caller, orgID uuid.UUID) error
}

type roleAuthorizer struct{}

// NewRoleAuthorizer passes callers bound to orgID whose role may scan.
func NewRoleAuthorizer() Authorizer {
	return roleAuthorizer{}
}

func (roleAuthorizer) Authorize(_ context.Context, caller Caller, orgID uuid.UUID) error {
	if caller.OrgID != orgID {
		return utils.NewForbidden("organization mismatch", utils.ErrOrganizationMismatch)
	}
	if !caller.Role.CanScan() {
		return utils.NewForbidden("insufficient role", utils.ErrInsufficientRole)
	}
	return nil
}
