package notification

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospitalms/backoffice/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications", h.List)
	api.GET("/notifications/counts", h.Counts)
	api.POST("/notifications/:id/read", h.MarkRead)
	api.POST("/notifications/read", h.MarkCategoryRead)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	category := c.QueryParam("category")
	unreadOnly := c.QueryParam("unread") == "true"
	items, total, err := h.svc.List(c.Request().Context(), category, unreadOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Counts(c echo.Context) error {
	total, byCategory, err := h.svc.UnreadCounts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"unread":     total,
		"categories": byCategory,
	})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.MarkRead(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type markCategoryRequest struct {
	Category string `json:"category"`
}

func (h *Handler) MarkCategoryRead(c echo.Context) error {
	var req markCategoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "category is required")
	}
	if err := h.svc.MarkCategoryRead(c.Request().Context(), req.Category); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
