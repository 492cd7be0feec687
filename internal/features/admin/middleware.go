package admin

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/common"
)

const claimsKey = "admin.claims"

// RequireSession пропускает запрос только с действующей сессией в cookie.
func RequireSession(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookie)
			if err != nil {
				return common.ErrUnauthorized
			}
			claims, err := svc.Authorize(cookie.Value)
			if err != nil {
				return err
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// RequireCSRF проверяет X-CSRF-Token на изменяющих запросах.
// Ставится после RequireSession.
func RequireCSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			claims := ClaimsFrom(c)
			if claims == nil {
				return common.ErrUnauthorized
			}
			header := c.Request().Header.Get(CSRFHeader)
			if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(claims.CSRF)) != 1 {
				return common.ErrForbidden
			}
			return next(c)
		}
	}
}

// RequireAppKey сверяет X-APP-KEY с общим секретом страницы депозита.
func RequireAppKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(AppKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return common.ErrUnauthorized
			}
			return next(c)
		}
	}
}

// ClaimsFrom — сессия текущего запроса (nil, если RequireSession не выполнялся).
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}
