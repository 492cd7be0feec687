package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
)

// Recover перехватывает панику в обработчике и отвечает 500.
func Recover() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"component":  "panic_recovery",
						"panic":      fmt.Sprintf("%v", r),
						"stack":      string(debug.Stack()),
						"request_id": common.RequestID(c.Request().Context()),
						"path":       c.Path(),
					}).Error("ПАНИКА в обработчике — восстановлено")
					err = fmt.Errorf("паника в обработчике: %v", r)
				}
			}()
			return next(c)
		}
	}
}
