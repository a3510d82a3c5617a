package rbac

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for the role→permission
// graph.
type Repository interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id uuid.UUID) (*Role, error)
	ListRoles(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Role, int, error)

	ListPermissions(ctx context.Context) ([]*Permission, error)
	GetPermissionsByName(ctx context.Context, names []string) ([]*Permission, error)

	// FindRolePermissions returns the permission names granted to a role.
	// It is the lookup behind every capability check.
	FindRolePermissions(ctx context.Context, roleID uuid.UUID) ([]string, error)
	ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
}
