package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caremesh/caremesh/internal/platform/metrics"
)

// OrgHeader is the explicit tenant hint for principals permitted to
// operate cross-tenant.
const OrgHeader = "X-Org-ID"

// TenantResolution is the outcome of resolving the active organization
// for a request.
type TenantResolution struct {
	OrgID       uuid.UUID
	CrossTenant bool // superadmin acting outside its home organization
}

// ResolveTenant derives the active organization for the request. Order:
//
//  1. explicit X-Org-ID header, honored only for roles that may cross
//     tenants; for everyone else it must equal their own organization,
//  2. the principal's current organization (multi-org principals),
//  3. the principal's home organization.
//
// Fails closed: a request whose organization cannot be determined is
// rejected, never defaulted to "all data".
func ResolveTenant(r *http.Request, p *Principal) (TenantResolution, error) {
	if p == nil {
		return TenantResolution{}, ErrNoTenantContext
	}

	if hint := r.Header.Get(OrgHeader); hint != "" {
		hintID, err := uuid.Parse(hint)
		if err != nil || hintID == uuid.Nil {
			return TenantResolution{}, ErrNoTenantContext
		}

		if p.Role.CanCrossTenant() {
			return TenantResolution{
				OrgID:       hintID,
				CrossTenant: hintID != p.OrganizationID,
			}, nil
		}

		// A non-superadmin may send the header, but only naming its own
		// organization; anything else is a tenant violation.
		if hintID != p.OrganizationID && (p.CurrentOrgID == nil || hintID != *p.CurrentOrgID) {
			return TenantResolution{}, ErrTenantMismatch
		}
		return TenantResolution{OrgID: hintID}, nil
	}

	if p.CurrentOrgID != nil && *p.CurrentOrgID != uuid.Nil {
		return TenantResolution{OrgID: *p.CurrentOrgID}, nil
	}

	if p.OrganizationID == uuid.Nil {
		return TenantResolution{}, ErrNoTenantContext
	}
	return TenantResolution{OrgID: p.OrganizationID}, nil
}

// TenantMiddleware attaches the resolved organization to the request
// context. Runs after authentication; a missing principal here means the
// chain was mis-assembled, which fails closed as 401.
func TenantMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			p := PrincipalFromContext(ctx)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			res, err := ResolveTenant(c.Request(), p)
			switch err {
			case nil:
			case ErrTenantMismatch:
				metrics.AuthRejections.WithLabelValues("tenant").Inc()
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			default:
				metrics.AuthRejections.WithLabelValues("tenant").Inc()
				return echo.NewHTTPError(http.StatusBadRequest, "organization context required")
			}

			ctx = WithTenant(ctx, res.OrgID, res.CrossTenant)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("org_id", res.OrgID)

			return next(c)
		}
	}
}
