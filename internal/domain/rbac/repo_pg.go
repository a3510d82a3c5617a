package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremesh/caremesh/internal/platform/db"
)

var ErrNotFound = errors.New("role not found")

const roleColumns = `id, organization_id, key, name, description, is_system, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Runner(ctx, r.pool)
}

func (r *repoPG) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO roles (id, organization_id, key, name, description, is_system)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		role.ID, role.OrganizationID, role.Key, role.Name, role.Description, role.IsSystem,
	)
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

func (r *repoPG) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	return r.scanRole(r.conn(ctx).QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

func (r *repoPG) ListRoles(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Role, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM roles WHERE organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE organization_id = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Role
	for rows.Next() {
		role, err := r.scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, role)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ListPermissions(ctx context.Context) ([]*Permission, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) GetPermissionsByName(ctx context.Context, names []string) ([]*Permission, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, description FROM permissions WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) FindRolePermissions(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.name FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *repoPG) ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	conn := r.conn(ctx)

	if _, err := conn.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role grants: %w", err)
	}
	for _, pid := range permissionIDs {
		if _, err := conn.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			roleID, pid); err != nil {
			return fmt.Errorf("grant permission: %w", err)
		}
	}
	return nil
}

func (r *repoPG) scanRole(row pgx.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.OrganizationID, &role.Key, &role.Name,
		&role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}
