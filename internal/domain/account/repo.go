package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for accounts.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Account, int, error)

	UpdateRole(ctx context.Context, id uuid.UUID, role string, roleID *uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateLockout(ctx context.Context, id uuid.UUID, until *time.Time) error
	SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
