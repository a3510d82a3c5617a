package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/internal/platform/db"
)

var ErrNotFound = errors.New("account not found")

const accountColumns = `id, organization_id, username, email, password_hash, role, role_id,
	current_org_id, is_active, locked_until, last_login_at, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Runner(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.IsActive = true

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO principals (
			id, organization_id, username, email, password_hash, role, role_id, current_org_id, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.OrganizationID, a.Username, a.Email, a.PasswordHash,
		a.Role, a.RoleID, a.CurrentOrgID, a.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM principals WHERE id = $1`, id))
}

func (r *repoPG) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM principals WHERE username = $1`, username))
}

func (r *repoPG) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Account, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM principals WHERE organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+accountColumns+` FROM principals WHERE organization_id = $1 ORDER BY username LIMIT $2 OFFSET $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) UpdateRole(ctx context.Context, id uuid.UUID, role string, roleID *uuid.UUID) error {
	return r.update(ctx,
		`UPDATE principals SET role = $2, role_id = $3, updated_at = NOW() WHERE id = $1`,
		id, role, roleID)
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(ctx,
		`UPDATE principals SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash)
}

func (r *repoPG) UpdateLockout(ctx context.Context, id uuid.UUID, until *time.Time) error {
	return r.update(ctx,
		`UPDATE principals SET locked_until = $2, updated_at = NOW() WHERE id = $1`,
		id, until)
}

func (r *repoPG) SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx,
		`UPDATE principals SET last_login_at = $2, updated_at = NOW() WHERE id = $1`,
		id, at)
}

func (r *repoPG) update(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) scan(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Username, &a.Email, &a.PasswordHash,
		&a.Role, &a.RoleID, &a.CurrentOrgID, &a.IsActive, &a.LockedUntil,
		&a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// PrincipalStore exposes the repository through the contract the
// middleware chain consumes.
type PrincipalStore struct {
	repo Repository
}

func NewPrincipalStore(repo Repository) *PrincipalStore {
	return &PrincipalStore{repo: repo}
}

func (s *PrincipalStore) FindPrincipalByID(ctx context.Context, id uuid.UUID) (*auth.Principal, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Principal(), nil
}

func (s *PrincipalStore) UpdateLockoutState(ctx context.Context, id uuid.UUID, until *time.Time) error {
	return s.repo.UpdateLockout(ctx, id, until)
}
