package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caremesh/caremesh/internal/platform/auth"
	"github.com/caremesh/caremesh/pkg/pagination"
)

// Handler exposes read-only compliance queries over the trail. There is
// no write surface: entries are only produced by the services themselves.
type Handler struct {
	repo Repo
}

func NewHandler(repo Repo) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireAnyRole(auth.RoleAdmin, auth.RoleSuperadmin))
	admin.GET("/audit", h.Search)
}

func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	orgID := auth.CurrentTenant(ctx)
	if orgID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "organization context required")
	}

	p := pagination.FromContext(c)
	q := Query{
		OrgID:      orgID,
		EntityType: c.QueryParam("entity_type"),
		Action:     Action(c.QueryParam("action")),
		Limit:      p.Limit,
		Offset:     p.Offset,
	}

	if raw := c.QueryParam("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid actor_id")
		}
		q.ActorID = id
	}
	if raw := c.QueryParam("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid entity_id")
		}
		q.EntityID = id
	}
	if raw := c.QueryParam("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		q.From = ts
	}
	if raw := c.QueryParam("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		q.To = ts
	}

	entries, total, err := h.repo.Search(ctx, q)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit search failed")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p.Limit, p.Offset))
}
