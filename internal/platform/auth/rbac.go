package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role is a closed tag type. Only roles registered below pass validation;
// an unknown literal fails authorization instead of silently matching.
type Role string

const (
	RoleSuperadmin   Role = "superadmin"
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleNurse        Role = "nurse"
	RolePharmacist   Role = "pharmacist"
	RoleLabTech      Role = "lab_tech"
	RoleReceptionist Role = "receptionist"
	RoleBilling      Role = "billing"
	RolePatient      Role = "patient"
)

// DefaultRole is assigned when a principal's role resolves to nothing.
// It is the minimal role: it grants no protected capability by itself.
const DefaultRole = RoleReceptionist

var knownRoles = map[Role]bool{
	RoleSuperadmin:   true,
	RoleAdmin:        true,
	RoleDoctor:       true,
	RoleNurse:        true,
	RolePharmacist:   true,
	RoleLabTech:      true,
	RoleReceptionist: true,
	RoleBilling:      true,
	RolePatient:      true,
}

// Valid reports whether r is a registered, non-empty role.
func (r Role) Valid() bool {
	return knownRoles[r]
}

// CanCrossTenant reports whether the role may operate outside its home
// organization. Only superadmin, and every such access is flagged in audit.
func (r Role) CanCrossTenant() bool {
	return r == RoleSuperadmin
}

// HasRole evaluates coarse-grained authorization: exact set membership of
// the principal's role in the allowed set. Deny-by-default: an invalid or
// empty role never matches, and matching is whole-string equality, never
// substring or case-folded comparison, so "nurse" cannot satisfy
// "nurse_supervisor" or vice versa.
func HasRole(p *Principal, allowed ...Role) bool {
	if p == nil || !p.Role.Valid() {
		return false
	}
	for _, a := range allowed {
		if p.Role == a {
			return true
		}
	}
	return false
}

// PermissionEngine evaluates fine-grained capability checks against the
// role→permission graph. Lookups are cached per role with a short TTL so
// the hot path costs at most one store round-trip per role per TTL window,
// and a revoked permission is honored within the TTL.
type PermissionEngine struct {
	store RolePermissionStore
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[uuid.UUID]cachedPerms
}

type cachedPerms struct {
	perms     map[string]bool
	fetchedAt time.Time
}

// NewPermissionEngine creates an engine over the given store. ttl bounds
// the stale-permission window.
func NewPermissionEngine(store RolePermissionStore, ttl time.Duration) *PermissionEngine {
	return &PermissionEngine{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[uuid.UUID]cachedPerms),
	}
}

// HasCapability reports whether the principal's dynamic role grants the
// named permission. Principals without a dynamic role link are denied:
// capability checks require the fine-grained model, absence is denial.
func (e *PermissionEngine) HasCapability(ctx context.Context, p *Principal, permission string) (bool, error) {
	if p == nil || p.RoleID == nil || permission == "" {
		return false, nil
	}

	perms, err := e.permissions(ctx, *p.RoleID)
	if err != nil {
		return false, err
	}
	return perms[permission], nil
}

// Invalidate drops the cached permission set for a role. Called after a
// role's permissions are edited so the stale window does not apply to the
// admin who made the change.
func (e *PermissionEngine) Invalidate(roleID uuid.UUID) {
	e.mu.Lock()
	delete(e.cache, roleID)
	e.mu.Unlock()
}

func (e *PermissionEngine) permissions(ctx context.Context, roleID uuid.UUID) (map[string]bool, error) {
	e.mu.RLock()
	entry, ok := e.cache[roleID]
	e.mu.RUnlock()

	if ok && e.now().Sub(entry.fetchedAt) < e.ttl {
		return entry.perms, nil
	}

	names, err := e.store.FindRolePermissions(ctx, roleID)
	if err != nil {
		// Serve a stale entry rather than failing the request outright;
		// the caller still gets deny-by-default if the entry is absent.
		if ok {
			return entry.perms, nil
		}
		return nil, err
	}

	perms := make(map[string]bool, len(names))
	for _, n := range names {
		perms[n] = true
	}

	e.mu.Lock()
	e.cache[roleID] = cachedPerms{perms: perms, fetchedAt: e.now()}
	e.mu.Unlock()

	return perms, nil
}
