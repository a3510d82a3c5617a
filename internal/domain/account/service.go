package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/caremesh/caremesh/internal/platform/audit"
	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/internal/platform/db"
	"github.com/caremesh/caremesh/internal/platform/metrics"
)

// ErrInvalidCredentials is the single failure answer for login: unknown
// username and wrong password are indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidInput tags request validation failures. Handlers return these
// to the caller; untagged errors come back as a generic 500.
var ErrInvalidInput = errors.New("invalid input")

// LockoutError reports a locked account with the time remaining, so the
// handler can set Retry-After.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return "account locked"
}

// RequestMeta carries request attribution into audit entries.
type RequestMeta struct {
	IPAddress      string
	UserAgent      string
	IdempotencyKey string
}

// LoginResult is a successful authentication.
type LoginResult struct {
	Token   string   `json:"token"`
	Account *Account `json:"account"`
}

// Service implements the account operations. It also satisfies
// auth.RoleRepairer so the middleware chain can restore a default role on
// principals whose role resolved to nothing.
type Service struct {
	repo     Repository
	pool     *pgxpool.Pool
	codec    *auth.Codec
	sessions *auth.SessionTracker
	revoked  *auth.RevocationList
	throttle *auth.LoginThrottle
	recorder *audit.Recorder
	logger   zerolog.Logger
}

func NewService(
	repo Repository,
	pool *pgxpool.Pool,
	codec *auth.Codec,
	sessions *auth.SessionTracker,
	revoked *auth.RevocationList,
	throttle *auth.LoginThrottle,
	recorder *audit.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		pool:     pool,
		codec:    codec,
		sessions: sessions,
		revoked:  revoked,
		throttle: throttle,
		recorder: recorder,
		logger:   logger,
	}
}

// Login authenticates a username and password. The throttle is consulted
// before the password is verified so a locked account answers identically
// for right and wrong passwords.
func (s *Service) Login(ctx context.Context, username, password string, meta RequestMeta) (*LoginResult, error) {
	if allowed, retryAfter := s.throttle.Check(username); !allowed {
		return nil, &LockoutError{RetryAfter: retryAfter}
	}

	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		s.recordFailure(ctx, username, nil, meta)
		return nil, ErrInvalidCredentials
	}

	if until := a.LockedUntil; until != nil && time.Now().Before(*until) {
		return nil, &LockoutError{RetryAfter: time.Until(*until)}
	}

	if !a.IsActive {
		s.recordFailure(ctx, username, a, meta)
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		s.recordFailure(ctx, username, a, meta)
		return nil, ErrInvalidCredentials
	}

	s.throttle.RecordAttempt(username, true)

	token, err := s.codec.Issue(a.Principal())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.sessions.Begin(a.ID)

	now := time.Now().UTC()
	if err := s.repo.SetLastLogin(ctx, a.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("account_id", a.ID.String()).Msg("failed to record last login")
	}
	a.LastLoginAt = &now

	s.recorder.Record(ctx, &audit.Entry{
		ActorID:        a.ID,
		Action:         audit.ActionLogin,
		EntityType:     "principal",
		EntityID:       a.ID,
		OrganizationID: a.OrganizationID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	})

	return &LoginResult{Token: token, Account: a}, nil
}

// recordFailure counts a failed attempt, persists a lockout when the
// threshold trips, and audits both events.
func (s *Service) recordFailure(ctx context.Context, username string, a *Account, meta RequestMeta) {
	lockedUntil := s.throttle.RecordAttempt(username, false)

	var actorID, orgID uuid.UUID
	if a != nil {
		actorID, orgID = a.ID, a.OrganizationID
	}

	s.recorder.Record(ctx, &audit.Entry{
		ActorID:        actorID,
		Action:         audit.ActionLoginFailed,
		EntityType:     "principal",
		EntityID:       actorID,
		OrganizationID: orgID,
		Details:        map[string]interface{}{"username": username},
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	})

	if lockedUntil == nil {
		return
	}

	metrics.Lockouts.Inc()
	s.logger.Warn().Str("username", username).Time("locked_until", *lockedUntil).Msg("account locked")

	if a != nil {
		if err := s.repo.UpdateLockout(ctx, a.ID, lockedUntil); err != nil {
			s.logger.Error().Err(err).Str("account_id", a.ID.String()).Msg("failed to persist lockout")
		}
		s.recorder.Record(ctx, &audit.Entry{
			ActorID:        a.ID,
			Action:         audit.ActionAccountLocked,
			EntityType:     "principal",
			EntityID:       a.ID,
			OrganizationID: a.OrganizationID,
			Details:        map[string]interface{}{"locked_until": lockedUntil.UTC()},
			IPAddress:      meta.IPAddress,
			UserAgent:      meta.UserAgent,
		})
	}
}

// Logout revokes the presented token and ends the session. Logout always
// succeeds for an authenticated caller.
func (s *Service) Logout(ctx context.Context, p *auth.Principal, jti string, tokenExpiry time.Time, meta RequestMeta) {
	s.revoked.Revoke(jti, tokenExpiry)
	s.sessions.End(p.ID)

	s.recorder.Record(ctx, &audit.Entry{
		ActorID:        p.ID,
		Action:         audit.ActionLogout,
		EntityType:     "principal",
		EntityID:       p.ID,
		OrganizationID: p.OrganizationID,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	})
}

// ChangeRole reassigns a target account's role. Actors cannot change
// their own role, the target must be in the actor's active organization,
// and the audit entry commits atomically with the change.
func (s *Service) ChangeRole(ctx context.Context, actor *auth.Principal, targetID uuid.UUID, newRole string, newRoleID *uuid.UUID, meta RequestMeta) error {
	if actor.ID == targetID {
		return auth.ErrForbidden
	}
	if !auth.Role(newRole).Valid() {
		return fmt.Errorf("unknown role %q: %w", newRole, ErrInvalidInput)
	}

	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target.OrganizationID != auth.CurrentTenant(ctx) {
		return auth.ErrForbidden
	}

	txCtx, tx, err := db.WithTx(ctx, s.pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.repo.UpdateRole(txCtx, targetID, newRole, newRoleID); err != nil {
		return err
	}

	entry := &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionChangeUserRole,
		EntityType:     "principal",
		EntityID:       targetID,
		OrganizationID: target.OrganizationID,
		Details: map[string]interface{}{
			"old_role": target.Role,
			"new_role": newRole,
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

// ResetPassword replaces a target account's password. Atomic with its
// audit entry, same as ChangeRole.
func (s *Service) ResetPassword(ctx context.Context, actor *auth.Principal, targetID uuid.UUID, newPassword string, meta RequestMeta) error {
	if len(newPassword) < 12 {
		return fmt.Errorf("password must be at least 12 characters: %w", ErrInvalidInput)
	}

	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target.OrganizationID != auth.CurrentTenant(ctx) {
		return auth.ErrForbidden
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	txCtx, tx, err := db.WithTx(ctx, s.pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.repo.UpdatePassword(txCtx, targetID, string(hash)); err != nil {
		return err
	}

	entry := &audit.Entry{
		ActorID:        actor.ID,
		Action:         audit.ActionResetPassword,
		EntityType:     "principal",
		EntityID:       targetID,
		OrganizationID: target.OrganizationID,
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

// RepairRole restores the default minimal role on a principal whose role
// resolved to nothing. Implements auth.RoleRepairer.
func (s *Service) RepairRole(ctx context.Context, p *auth.Principal) error {
	if err := s.repo.UpdateRole(ctx, p.ID, string(auth.DefaultRole), nil); err != nil {
		return err
	}

	s.recorder.Record(ctx, &audit.Entry{
		ActorID:        p.ID,
		Action:         audit.ActionRoleRepaired,
		EntityType:     "principal",
		EntityID:       p.ID,
		OrganizationID: p.OrganizationID,
		Details: map[string]interface{}{
			"previous_role": string(p.Role),
			"assigned_role": string(auth.DefaultRole),
		},
	})

	p.Role = auth.DefaultRole
	p.RoleID = nil
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OrganizationID != auth.CurrentTenant(ctx) {
		return nil, auth.ErrForbidden
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	orgID := auth.CurrentTenant(ctx)
	if orgID == uuid.Nil {
		return nil, 0, auth.ErrNoTenantContext
	}
	return s.repo.List(ctx, orgID, limit, offset)
}
