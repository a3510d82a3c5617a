package org

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for organizations.
type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
