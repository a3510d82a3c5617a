package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated actor as the access-control core sees it:
// enough state to authenticate, resolve a tenant and authorize, nothing
// more. The account domain owns the full storage model and adapts it to
// this view.
type Principal struct {
	ID             uuid.UUID
	Username       string
	Role           Role       // legacy single-role tag
	RoleID         *uuid.UUID // optional link to a dynamic role
	OrganizationID uuid.UUID  // home tenant
	CurrentOrgID   *uuid.UUID // active tenant for multi-org principals
	IsActive       bool
	LockedUntil    *time.Time
}

// Locked reports whether the principal is currently locked out.
func (p *Principal) Locked(now time.Time) bool {
	return p.LockedUntil != nil && now.Before(*p.LockedUntil)
}

// PrincipalStore is the narrow persistence contract the core consumes.
// The core never embeds SQL; collaborators provide implementations.
type PrincipalStore interface {
	FindPrincipalByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	UpdateLockoutState(ctx context.Context, id uuid.UUID, lockedUntil *time.Time) error
}

// RolePermissionStore resolves the capability set of a dynamic role.
type RolePermissionStore interface {
	FindRolePermissions(ctx context.Context, roleID uuid.UUID) ([]string, error)
}
