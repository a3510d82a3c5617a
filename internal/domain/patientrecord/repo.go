package patientrecord

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for patient records.
// GetByID is deliberately unscoped: the service compares the record's
// organization against the caller's tenant so a cross-org attempt can be
// distinguished from a missing record and audited as a denial.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Record, int, error)
}
