package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/caremesh/caremesh/internal/platform/audit"
	"github.com/caremesh/caremesh/internal/platform/auth"
)

// DenialAudit records an ACCESS_DENIED entry whenever a downstream guard
// or handler rejects an authenticated request with 403. Handlers that
// know the entity being protected emit their own richer denial entries;
// this middleware is the backstop so no denial goes unrecorded. It sits
// between authentication and the route guards.
func DenialAudit(recorder *audit.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusForbidden {
				return err
			}

			ctx := c.Request().Context()
			p := auth.PrincipalFromContext(ctx)
			if p == nil {
				return err
			}

			entry := &audit.Entry{
				ActorID:        p.ID,
				Action:         audit.ActionAccessDenied,
				EntityType:     "route",
				OrganizationID: auth.CurrentTenant(ctx),
				Details: map[string]interface{}{
					"method": c.Request().Method,
					"path":   c.Path(),
					"role":   string(p.Role),
				},
				IPAddress:   c.RealIP(),
				UserAgent:   c.Request().UserAgent(),
				CrossTenant: auth.IsCrossTenant(ctx),
			}
			recorder.Record(ctx, entry)

			return err
		}
	}
}
