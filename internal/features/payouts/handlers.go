package payouts

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/common"
)

// Handler — HTTP-обработчики выплат.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает ручки к защищённой группе панели.
func (h *Handler) Register(area *echo.Group) {
	area.GET("/payouts", h.List)
	area.PATCH("/payouts/:id", h.SetStatus)
	area.POST("/payouts/:id/revert", h.Revert)
	area.DELETE("/payouts/:id", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	list, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// SetStatus — PATCH /payouts/:id {status}.
func (h *Handler) SetStatus(c echo.Context) error {
	var req SetStatusRequest
	if err := c.Bind(&req); err != nil {
		return common.InvalidInput("некорректное тело запроса")
	}
	p, err := h.service.SetStatus(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Revert(c echo.Context) error {
	if _, err := h.service.Revert(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}
