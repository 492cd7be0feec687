// Package deposits — handlers.go: HTTP-ручки депозитов (bancas).
package deposits

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/common"
)

// Handler — HTTP-обработчики депозитов.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает ручки.
//   - public + appKey: подтверждение оплаты со страницы депозита;
//   - area: панель оператора (сессия + CSRF на изменяющих запросах).
func (h *Handler) Register(public *echo.Echo, appKey echo.MiddlewareFunc, area *echo.Group) {
	public.POST("/deposits/confirm", h.Confirm, appKey)

	area.GET("/deposits", h.List)
	area.POST("/deposits", h.Create)
	area.PATCH("/deposits/:id", h.Adjust)
	area.POST("/deposits/:id/advance", h.Advance)
	area.DELETE("/deposits/:id", h.Delete)
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return common.InvalidInput("некорректное тело запроса")
	}
	return nil
}

// Confirm — POST /deposits/confirm.
func (h *Handler) Confirm(c echo.Context) error {
	var req ConfirmRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	d, err := h.service.Confirm(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ConfirmResponse{OK: true, Deposit: d})
}

// List — GET /deposits.
func (h *Handler) List(c echo.Context) error {
	list, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// Create — POST /deposits.
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	d, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// Adjust — PATCH /deposits/:id.
func (h *Handler) Adjust(c echo.Context) error {
	var req AdjustRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	d, err := h.service.Adjust(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// Advance — POST /deposits/:id/advance.
func (h *Handler) Advance(c echo.Context) error {
	var req AdvanceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if _, err := h.service.Advance(c.Request().Context(), c.Param("id"), req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// Delete — DELETE /deposits/:id.
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}
