package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the routes that run before authentication.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/auth/login", h.Login)
}

// RegisterRoutes mounts the authenticated account routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)

	admin := api.Group("", auth.RequireAnyRole(auth.RoleAdmin, auth.RoleSuperadmin))
	admin.GET("/accounts", h.List)
	admin.GET("/accounts/:id", h.Get)
	admin.POST("/accounts/:id/reset-password", h.ResetPassword)

	// Senior clinical staff may reassign roles (shift handover); the
	// service still refuses self-changes and cross-org targets.
	api.PUT("/accounts/:id/role", h.ChangeRole,
		auth.RequireAnyRole(auth.RoleDoctor, auth.RoleAdmin, auth.RoleSuperadmin))
}

// RegisterPortalRoutes mounts the patient-portal surface. Portal tokens
// verify against a separate key ring and always carry the patient role,
// so nothing here can reach the staff routes.
func (h *Handler) RegisterPortalRoutes(portal *echo.Group) {
	portal.GET("/me", h.Me)
	portal.POST("/logout", h.Logout)
}

func (h *Handler) Login(c echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil || body.Username == "" || body.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password required")
	}

	result, err := h.svc.Login(c.Request().Context(), body.Username, body.Password, metaFrom(c))
	if err != nil {
		var le *LockoutError
		if errors.As(err, &le) {
			secs := int(le.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			return echo.NewHTTPError(http.StatusLocked, "account locked")
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	if claims, ok := c.Get("token_claims").(*auth.Claims); ok && claims.ExpiresAt != nil {
		h.svc.Logout(ctx, p, claims.ID, claims.ExpiresAt.Time, metaFrom(c))
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated principal's own account.
func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	a, err := h.svc.Get(ctx, p.ID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	accounts, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(accounts, total, p.Limit, p.Offset))
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var body struct {
		Role   string     `json:"role"`
		RoleID *uuid.UUID `json:"role_id,omitempty"`
	}
	if err := c.Bind(&body); err != nil || body.Role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role required")
	}

	actor := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.ChangeRole(c.Request().Context(), actor, id, body.Role, body.RoleID, metaFrom(c)); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil || body.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "password required")
	}

	actor := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.ResetPassword(c.Request().Context(), actor, id, body.Password, metaFrom(c)); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func metaFrom(c echo.Context) RequestMeta {
	return RequestMeta{
		IPAddress:      c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
		IdempotencyKey: c.Request().Header.Get("Idempotency-Key"),
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, auth.ErrNoTenantContext):
		return echo.NewHTTPError(http.StatusBadRequest, "organization context required")
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
