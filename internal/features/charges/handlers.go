// Package charges — handlers.go: публичные HTTP-ручки платежей.
package charges

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/common"
)

// Handler — HTTP-обработчики платежей.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register подключает ручки. Авторизации нет: защита — минимальная сумма.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/charges", h.Create)
	e.GET("/charges/:token/status", h.Status)
}

// Create — POST /charges.
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return common.InvalidInput("некорректное тело запроса")
	}
	res, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Status — GET /charges/:token/status.
func (h *Handler) Status(c echo.Context) error {
	res, err := h.service.Status(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
