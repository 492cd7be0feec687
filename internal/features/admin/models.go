// Package admin реализует вход оператора в панель: проверку пароля,
// сессию в cookie (JWT) и защиту изменяющих запросов CSRF-токеном.
// models.go описывает запросы, ответы и попытки входа.
package admin

import "time"

// Имена cookie и заголовков
const (
	SessionCookie = "session"
	CSRFCookie    = "csrf"
	CSRFHeader    = "X-CSRF-Token"
	AppKeyHeader  = "X-APP-KEY"
)

// SessionTTL — срок жизни сессии. Не продлевается при активности.
const SessionTTL = 2 * time.Hour

// LoginRequest — тело POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse — ответ на успешный вход.
type LoginResponse struct {
	OK        bool      `json:"ok"`
	User      string    `json:"user"`
	CSRF      string    `json:"csrf"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MeResponse — ответ GET /auth/me.
type MeResponse struct {
	User      string    `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// OKResponse — {ok:true}.
type OKResponse struct {
	OK bool `json:"ok"`
}

// LoginAttempt — попытка входа (журнал для разбора подборов пароля).
type LoginAttempt struct {
	Username    string
	RemoteIP    string
	Success     bool
	AttemptedAt time.Time
}

// Session — выданная сессия.
type Session struct {
	User      string
	Token     string
	CSRF      string
	ExpiresAt time.Time
}
