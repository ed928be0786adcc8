package dispense

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
	api.GET("/dispenses", h.List)
	api.GET("/dispenses/:id", h.Get)
	api.POST("/dispenses", h.Create)
	api.PUT("/dispenses/:id", h.Edit)
	api.POST("/dispenses/:id/approve", h.Approve)
	api.POST("/dispenses/:id/cancel", h.Cancel)
	api.POST("/dispenses/:id/complete", h.Complete)
}

type createRequest struct {
	Note  *string         `json:"note"`
	Items []*DispenseItem `json:"items"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d := &Dispense{Note: req.Note, Items: req.Items}
	if err := h.svc.Create(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dispense not found")
	}
	return c.JSON(http.StatusOK, d)
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
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Approve(c echo.Context) error {
	return h.runTransition(c, h.svc.Approve)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.runTransition(c, h.svc.Cancel)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.runTransition(c, h.svc.Complete)
}

func (h *Handler) runTransition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

// httpError maps the stock error taxonomy onto response codes so clients can
// distinguish a stale request from a bad one.
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
