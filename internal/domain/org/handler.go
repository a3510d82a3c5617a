package org

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caremesh/caremesh/internal/platform/audit"
	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/pkg/pagination"
)

// Handler serves organization administration. Organizations are platform
// scoped, not tenant scoped, so every route is superadmin only.
type Handler struct {
	repo     Repository
	recorder *audit.Recorder
}

func NewHandler(repo Repository, recorder *audit.Recorder) *Handler {
	return &Handler{repo: repo, recorder: recorder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleSuperadmin))
	g.GET("/orgs", h.List)
	g.GET("/orgs/:id", h.Get)
	g.POST("/orgs", h.Create)
	g.PUT("/orgs/:id/active", h.SetActive)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	orgs, total, err := h.repo.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list organizations")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orgs, total, p.Limit, p.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "organization not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load organization")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Create(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	body.Name = strings.TrimSpace(body.Name)
	body.Slug = strings.TrimSpace(strings.ToLower(body.Slug))
	if body.Name == "" || body.Slug == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and slug required")
	}

	ctx := c.Request().Context()
	o := &Organization{Name: body.Name, Slug: body.Slug}
	if err := h.repo.Create(ctx, o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to create organization")
	}

	if actor := auth.PrincipalFromContext(ctx); actor != nil {
		h.recorder.Record(ctx, &audit.Entry{
			ActorID:        actor.ID,
			Action:         audit.ActionCreateOrg,
			EntityType:     "organization",
			EntityID:       o.ID,
			OrganizationID: o.ID,
			Details:        map[string]interface{}{"name": o.Name, "slug": o.Slug},
			IPAddress:      c.RealIP(),
			UserAgent:      c.Request().UserAgent(),
			IdempotencyKey: c.Request().Header.Get("Idempotency-Key"),
		})
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) SetActive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var body struct {
		Active *bool `json:"active"`
	}
	if err := c.Bind(&body); err != nil || body.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "active required")
	}

	ctx := c.Request().Context()
	if err := h.repo.SetActive(ctx, id, *body.Active); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "organization not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update organization")
	}

	if actor := auth.PrincipalFromContext(ctx); actor != nil {
		h.recorder.Record(ctx, &audit.Entry{
			ActorID:        actor.ID,
			Action:         audit.ActionSetOrgActive,
			EntityType:     "organization",
			EntityID:       id,
			OrganizationID: id,
			Details:        map[string]interface{}{"active": *body.Active},
			IPAddress:      c.RealIP(),
			UserAgent:      c.Request().UserAgent(),
			IdempotencyKey: c.Request().Header.Get("Idempotency-Key"),
		})
	}
	return c.NoContent(http.StatusNoContent)
}
