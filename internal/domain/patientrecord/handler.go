package patientrecord

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
	clinical := api.Group("", auth.RequireAnyRole(
		auth.RoleSuperadmin, auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	clinical.GET("/patient-records", h.List)
	clinical.GET("/patient-records/:id", h.Get)
	clinical.POST("/patient-records", h.Create)
	clinical.PUT("/patient-records/:id", h.Update)

	// Deletion is the narrowest grant.
	del := api.Group("", auth.RequireAnyRole(auth.RoleSuperadmin, auth.RoleAdmin))
	del.DELETE("/patient-records/:id", h.Delete)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	actor := auth.PrincipalFromContext(c.Request().Context())
	rec, err := h.svc.Get(c.Request().Context(), actor, id, metaFrom(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	records, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
}

func (h *Handler) Create(c echo.Context) error {
	var rec Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.Create(c.Request().Context(), actor, &rec, metaFrom(c)); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var rec Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec.ID = id

	actor := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.Update(c.Request().Context(), actor, &rec, metaFrom(c)); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	actor := auth.PrincipalFromContext(c.Request().Context())
	if err := h.svc.Delete(c.Request().Context(), actor, id, metaFrom(c)); err != nil {
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
		return echo.NewHTTPError(http.StatusNotFound, "patient record not found")
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
