package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	principalKey   contextKey = "principal"
	tenantKey      contextKey = "tenant"
	crossTenantKey contextKey = "cross_tenant"
)

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// WithTenant returns a context carrying the resolved organization and
// whether the access crosses tenants (superadmin acting outside its home
// organization; the flag ends up on every audit entry for the request).
func WithTenant(ctx context.Context, orgID uuid.UUID, crossTenant bool) context.Context {
	ctx = context.WithValue(ctx, tenantKey, orgID)
	if crossTenant {
		ctx = context.WithValue(ctx, crossTenantKey, true)
	}
	return ctx
}

// CurrentTenant returns the resolved organization for the request.
// uuid.Nil means resolution has not run; handlers must treat that as a
// caller configuration error, never as "all data".
func CurrentTenant(ctx context.Context) uuid.UUID {
	orgID, _ := ctx.Value(tenantKey).(uuid.UUID)
	return orgID
}

// IsCrossTenant reports whether the request was explicitly flagged as
// cross-tenant access.
func IsCrossTenant(ctx context.Context) bool {
	v, _ := ctx.Value(crossTenantKey).(bool)
	return v
}
