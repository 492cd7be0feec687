// Package admin — handlers.go: ручки входа, выхода и текущей сессии.
package admin

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/common"
)

// Handler — HTTP-обработчики входа.
type Handler struct {
	service *Service
	secure  bool
}

// NewHandler создаёт обработчики. secure ставит флаг Secure на cookie (production).
func NewHandler(service *Service, secure bool) *Handler {
	return &Handler{service: service, secure: secure}
}

// Register подключает ручки: вход публичный, остальное — в защищённой группе.
func (h *Handler) Register(public *echo.Echo, area *echo.Group) {
	public.POST("/auth/login", h.Login)
	area.POST("/auth/logout", h.Logout)
	area.GET("/auth/me", h.Me)
}

// Login — POST /auth/login.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return common.InvalidInput("некорректное тело запроса")
	}
	session, err := h.service.Login(c.Request().Context(), req, c.RealIP())
	if err != nil {
		return err
	}

	c.SetCookie(h.cookie(SessionCookie, session.Token, session.ExpiresAt, true))
	c.SetCookie(h.cookie(CSRFCookie, session.CSRF, session.ExpiresAt, false))

	return c.JSON(http.StatusOK, LoginResponse{
		OK:        true,
		User:      session.User,
		CSRF:      session.CSRF,
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout — POST /auth/logout. Сессия без состояния: достаточно стереть cookie.
func (h *Handler) Logout(c echo.Context) error {
	expired := time.Unix(0, 0)
	c.SetCookie(h.cookie(SessionCookie, "", expired, true))
	c.SetCookie(h.cookie(CSRFCookie, "", expired, false))
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// Me — GET /auth/me.
func (h *Handler) Me(c echo.Context) error {
	claims := ClaimsFrom(c)
	if claims == nil {
		return common.ErrUnauthorized
	}
	res := MeResponse{User: claims.Subject}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) cookie(name, value string, expires time.Time, httpOnly bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(time.Until(expires).Seconds())
	}
	return c
}
