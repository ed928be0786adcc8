package madrug

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospitalms/backoffice/internal/domain/stock"
	"github.com/hospitalms/backoffice/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ma-drugs", h.List)
	api.GET("/ma-drugs/:id", h.Get)
	api.POST("/ma-drugs", h.Create)
	api.PUT("/ma-drugs/:id", h.Edit)
	api.POST("/ma-drugs/:id/approve", h.Approve)
	api.POST("/ma-drugs/:id/cancel", h.Cancel)
	api.POST("/ma-drugs/:id/receive", h.Receive)
}

type createRequest struct {
	Note  *string       `json:"note"`
	Items []*MaDrugItem `json:"items"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m := &MaDrug{Note: req.Note, Items: req.Items}
	if err := h.svc.Create(c.Request().Context(), m); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "requisition not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	status := Status(c.QueryParam("status"))
	items, total, err := h.svc.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Edit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Edit(c.Request().Context(), id, req.Note, req.Items); err != nil {
		return httpError(err)
	}
	return h.respondWith(c, id)
}

type receiveRequest struct {
	Receipts []Receipt `json:"receipts"`
}

func (h *Handler) Receive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req receiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Receive(c.Request().Context(), id, req.Receipts); err != nil {
		return httpError(err)
	}
	return h.respondWith(c, id)
}

func (h *Handler) Approve(c echo.Context) error {
	return h.runTransition(c, h.svc.Approve)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.runTransition(c, h.svc.Cancel)
}

func (h *Handler) runTransition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return h.respondWith(c, id)
}

func (h *Handler) respondWith(c echo.Context, id uuid.UUID) error {
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func httpError(err error) error {
	var insErr *stock.InsufficientStockError
	switch {
	case errors.As(err, &insErr):
		return echo.NewHTTPError(http.StatusConflict, insErr.Error())
	case errors.Is(err, stock.ErrAlreadyCompleted),
		errors.Is(err, stock.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, stock.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
