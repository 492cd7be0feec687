package ledger

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/common"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(area *echo.Group) {
	area.GET("/ledger", h.List)
}

// List — GET /ledger?kind=&name=&from=&to=&range=&limit=
func (h *Handler) List(c echo.Context) error {
	var q Query
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return common.InvalidInput("некорректные параметры запроса")
	}
	entries, err := h.service.List(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
