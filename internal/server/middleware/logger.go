// Package middleware содержит промежуточные обработчики echo для логирования,
// восстановления после паники, request id и rate-limiting.
package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
)

// RequestContext кладёт X-Request-ID (его выставляет middleware.RequestID)
// в context запроса, чтобы сервисы писали его в логи.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(common.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}

// AccessLog пишет одну запись logrus на запрос.
// Поток событий (/events) пишется при закрытии соединения.
func AccessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			entry := log.WithFields(log.Fields{
				"component":  "http",
				"method":     req.Method,
				"route":      c.Path(),
				"status":     res.Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"request_id": res.Header().Get(echo.HeaderXRequestID),
				"remote_ip":  c.RealIP(),
			})
			switch {
			case res.Status >= 500:
				entry.Error("HTTP-запрос")
			case res.Status >= 400:
				entry.Warn("HTTP-запрос")
			default:
				entry.Debug("HTTP-запрос")
			}
			return nil
		}
	}
}
