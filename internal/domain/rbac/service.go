package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremesh/caremesh/internal/platform/audit"
	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/internal/platform/db"
)

// ErrInvalidInput tags request validation failures. Handlers return these
// to the caller; untagged errors come back as a generic 500.
var ErrInvalidInput = errors.New("invalid input")

// Service manages roles and their grants. Role mutations are
// high-sensitivity: the audit entry commits in the same transaction as the
// change or the change does not happen.
type Service struct {
	repo     Repository
	pool     *pgxpool.Pool
	recorder *audit.Recorder
	engine   *auth.PermissionEngine
}

func NewService(repo Repository, pool *pgxpool.Pool, recorder *audit.Recorder, engine *auth.PermissionEngine) *Service {
	return &Service{repo: repo, pool: pool, recorder: recorder, engine: engine}
}

// RequestMeta carries the request attribution every audit entry needs.
type RequestMeta struct {
	IPAddress      string
	UserAgent      string
	IdempotencyKey string
}

func (s *Service) CreateRole(ctx context.Context, actor *auth.Principal, role *Role, meta RequestMeta) error {
	if role.Key == "" || role.Name == "" {
		return fmt.Errorf("role key and name are required: %w", ErrInvalidInput)
	}
	role.Key = strings.ToLower(strings.TrimSpace(role.Key))
	role.OrganizationID = auth.CurrentTenant(ctx)
	if role.OrganizationID == uuid.Nil {
		return auth.ErrNoTenantContext
	}

	txCtx, tx, err := db.WithTx(ctx, s.pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.repo.CreateRole(txCtx, role); err != nil {
		return err
	}

	entry := &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionCreateRole,
		EntityType:     "role",
		EntityID:       role.ID,
		OrganizationID: role.OrganizationID,
		Details: map[string]interface{}{
			"key":  role.Key,
			"name": role.Name,
		},
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CrossTenant:    auth.IsCrossTenant(ctx),
		IdempotencyKey: meta.IdempotencyKey,
	}
	if err := s.recorder.Record(txCtx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// EditGrants replaces a role's permission set. The audit entry names both
// the old and new grants so the change is reconstructable, and the
// engine's cache entry for the role is dropped on commit.
func (s *Service) EditGrants(ctx context.Context, actor *auth.Principal, roleID uuid.UUID, permissionNames []string, meta RequestMeta) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.OrganizationID != auth.CurrentTenant(ctx) {
		return auth.ErrForbidden
	}

	perms, err := s.repo.GetPermissionsByName(ctx, permissionNames)
	if err != nil {
		return err
	}
	if len(perms) != len(permissionNames) {
		return fmt.Errorf("unknown permission in grant set: %w", ErrInvalidInput)
	}

	oldGrants, err := s.repo.FindRolePermissions(ctx, roleID)
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}

	txCtx, tx, err := db.WithTx(ctx, s.pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.repo.ReplaceRolePermissions(txCtx, roleID, ids); err != nil {
		return err
	}

	entry := &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionEditRoleGrants,
		EntityType:     "role",
		EntityID:       roleID,
		OrganizationID: role.OrganizationID,
		Details: map[string]interface{}{
			"old_grants": oldGrants,
			"new_grants": permissionNames,
		},
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CrossTenant:    auth.IsCrossTenant(ctx),
		IdempotencyKey: meta.IdempotencyKey,
	}
	if err := s.recorder.Record(txCtx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.engine.Invalidate(roleID)
	return nil
}

func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.OrganizationID != auth.CurrentTenant(ctx) {
		return nil, auth.ErrForbidden
	}
	return role, nil
}

func (s *Service) ListRoles(ctx context.Context, limit, offset int) ([]*Role, int, error) {
	orgID := auth.CurrentTenant(ctx)
	if orgID == uuid.Nil {
		return nil, 0, auth.ErrNoTenantContext
	}
	return s.repo.ListRoles(ctx, orgID, limit, offset)
}

func (s *Service) ListPermissions(ctx context.Context) ([]*Permission, error) {
	return s.repo.ListPermissions(ctx)
}

func (s *Service) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.FindRolePermissions(ctx, roleID)
}
