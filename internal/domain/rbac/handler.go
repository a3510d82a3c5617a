package rbac

import (
	"errors"
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireAnyRole(auth.RoleAdmin, auth.RoleSuperadmin))
	admin.GET("/roles", h.ListRoles)
	admin.GET("/roles/:id", h.GetRole)
	admin.POST("/roles", h.CreateRole)
	admin.GET("/roles/:id/permissions", h.GetRolePermissions)
	admin.PUT("/roles/:id/permissions", h.EditGrants)
	admin.GET("/permissions", h.ListPermissions)
}

func (h *Handler) CreateRole(c echo.Context) error {
	var role Role
	if err := c.Bind(&role); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := auth.PrincipalFromContext(c.Request().Context())
	err := h.svc.CreateRole(c.Request().Context(), actor, &role, metaFrom(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, role)
}

func (h *Handler) GetRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	role, err := h.svc.GetRole(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, role)
}

func (h *Handler) ListRoles(c echo.Context) error {
	p := pagination.FromContext(c)
	roles, total, err := h.svc.ListRoles(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(roles, total, p.Limit, p.Offset))
}

func (h *Handler) ListPermissions(c echo.Context) error {
	perms, err := h.svc.ListPermissions(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, perms)
}

func (h *Handler) GetRolePermissions(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	names, err := h.svc.RolePermissions(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"permissions": names})
}

func (h *Handler) EditGrants(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var body struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.EditGrants(c.Request().Context(), actor, id, body.Permissions, metaFrom(c)); err != nil {
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
		return echo.NewHTTPError(http.StatusNotFound, "role not found")
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
