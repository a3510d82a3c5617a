package patientrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caremesh/caremesh/internal/platform/audit"
	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/internal/platform/db"
)

// ErrInvalidInput tags request validation failures. Handlers return these
// to the caller; untagged errors come back as a generic 500.
var ErrInvalidInput = errors.New("invalid input")

// Service applies tenant scoping and auditing to patient records. A
// cross-organization id is answered with a denial and audited, never
// downgraded to "not found": hiding the denial would hide the attempt
// from compliance.
type Service struct {
	repo     Repository
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

func NewService(repo Repository, pool *pgxpool.Pool, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, pool: pool, recorder: recorder}
}

// RequestMeta carries request attribution into audit entries.
type RequestMeta struct {
	IPAddress      string
	UserAgent      string
	IdempotencyKey string
}

// fetchScoped loads a record and enforces the tenant boundary. On a
// cross-org attempt it emits the ACCESS_DENIED entry itself, because only
// here are both the actor and the targeted entity known.
func (s *Service) fetchScoped(ctx context.Context, actor *auth.Principal, id uuid.UUID, meta RequestMeta) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	orgID := auth.CurrentTenant(ctx)
	if rec.OrganizationID == orgID {
		return rec, nil
	}

	s.recorder.Record(ctx, &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionAccessDenied,
		EntityType:     "patient_record",
		EntityID:       rec.ID,
		OrganizationID: orgID,
		Details: map[string]interface{}{
			"record_org": rec.OrganizationID.String(),
		},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return nil, auth.ErrForbidden
}

func (s *Service) Get(ctx context.Context, actor *auth.Principal, id uuid.UUID, meta RequestMeta) (*Record, error) {
	rec, err := s.fetchScoped(ctx, actor, id, meta)
	if err != nil {
		return nil, err
	}

	entry := &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionReadRecord,
		EntityType:     "patient_record",
		EntityID:       rec.ID,
		OrganizationID: rec.OrganizationID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CrossTenant:    auth.IsCrossTenant(ctx),
	}
	if auth.IsCrossTenant(ctx) {
		// Superadmin reading outside its home organization: the read is
		// allowed but escalated in the trail, atomically.
		entry.Action = audit.ActionCrossTenantAccess
		entry.Details = map[string]interface{}{"operation": "read"}
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		return nil, err
	}

	return rec, nil
}

func (s *Service) Create(ctx context.Context, actor *auth.Principal, rec *Record, meta RequestMeta) error {
	if rec.MRN == "" || rec.PatientName == "" {
		return fmt.Errorf("mrn and patient_name are required: %w", ErrInvalidInput)
	}

	rec.OrganizationID = auth.CurrentTenant(ctx)
	if rec.OrganizationID == uuid.Nil {
		return auth.ErrNoTenantContext
	}
	rec.CreatedBy = actor.ID

	if err := s.repo.Create(ctx, rec); err != nil {
		return err
	}

	s.recorder.Record(ctx, &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionCreateRecord,
		EntityType:     "patient_record",
		EntityID:       rec.ID,
		OrganizationID: rec.OrganizationID,
		Details:        map[string]interface{}{"mrn": rec.MRN},
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		IdempotencyKey: meta.IdempotencyKey,
	})
	return nil
}

func (s *Service) Update(ctx context.Context, actor *auth.Principal, rec *Record, meta RequestMeta) error {
	existing, err := s.fetchScoped(ctx, actor, rec.ID, meta)
	if err != nil {
		return err
	}
	rec.OrganizationID = existing.OrganizationID

	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}

	s.recorder.Record(ctx, &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionUpdateRecord,
		EntityType:     "patient_record",
		EntityID:       rec.ID,
		OrganizationID: rec.OrganizationID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CrossTenant:    auth.IsCrossTenant(ctx),
		IdempotencyKey: meta.IdempotencyKey,
	})
	return nil
}

// Delete removes a record. Deletion is high-sensitivity: the audit entry
// commits in the same transaction or the record stays.
func (s *Service) Delete(ctx context.Context, actor *auth.Principal, id uuid.UUID, meta RequestMeta) error {
	rec, err := s.fetchScoped(ctx, actor, id, meta)
	if err != nil {
		return err
	}

	txCtx, tx, err := db.WithTx(ctx, s.pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Delete(txCtx, id); err != nil {
		return err
	}

	entry := &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionDeleteRecord,
		EntityType:     "patient_record",
		EntityID:       rec.ID,
		OrganizationID: rec.OrganizationID,
		Details:        map[string]interface{}{"mrn": rec.MRN},
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

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	orgID := auth.CurrentTenant(ctx)
	if orgID == uuid.Nil {
		return nil, 0, auth.ErrNoTenantContext
	}
	return s.repo.ListByOrg(ctx, orgID, limit, offset)
}
