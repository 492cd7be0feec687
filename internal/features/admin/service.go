// Package admin — service.go: вход оператора с ограничением попыток.
package admin

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
)

// Limiter — ограничитель частоты по ключу (адресу клиента).
type Limiter interface {
	Allow(key string) bool
}

// Credentials — учётные данные оператора и лимит неудачных входов.
type Credentials struct {
	User         string
	PasswordHash string
	// MaxFailures неудачных попыток за Window с одного адреса блокируют вход
	// даже после рестарта (счёт по журналу).
	MaxFailures int
	Window      time.Duration
}

// Service управляет входом в панель.
type Service struct {
	creds    Credentials
	sessions *Sessions
	limiter  Limiter
	attempts AttemptLog
	now      func() time.Time
	logger   *log.Entry
}

// NewService создаёт сервис входа.
func NewService(creds Credentials, sessions *Sessions, limiter Limiter, attempts AttemptLog) *Service {
	return &Service{
		creds:    creds,
		sessions: sessions,
		limiter:  limiter,
		attempts: attempts,
		now:      time.Now,
		logger:   log.WithField("component", "admin"),
	}
}

// Login проверяет логин и пароль и выдаёт сессию.
func (s *Service) Login(ctx context.Context, req LoginRequest, remoteIP string) (*Session, error) {
	logger := s.logger.WithFields(log.Fields{
		"remote_ip":  remoteIP,
		"request_id": common.RequestID(ctx),
	})

	if !s.limiter.Allow(remoteIP) {
		logger.Warn("Превышен лимит попыток входа")
		return nil, common.ErrTooManyAttempts
	}
	if s.creds.MaxFailures > 0 {
		failures, err := s.attempts.RecentFailures(ctx, remoteIP, s.now().Add(-s.creds.Window))
		if err != nil {
			logger.WithError(err).Warn("Не удалось прочитать журнал попыток")
		} else if failures >= s.creds.MaxFailures {
			logger.Warn("Слишком много неудачных попыток по журналу")
			return nil, common.ErrTooManyAttempts
		}
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, common.InvalidInput("username и password обязательны")
	}

	// Пароль проверяется и при неверном логине
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.creds.User)) == 1
	passOK := verifyPassword(req.Password, s.creds.PasswordHash)
	ok := userOK && passOK

	attempt := LoginAttempt{Username: username, RemoteIP: remoteIP, Success: ok, AttemptedAt: s.now()}
	if err := s.attempts.LogAttempt(ctx, attempt); err != nil {
		logger.WithError(err).Warn("Не удалось записать попытку входа")
	}

	if !ok {
		logger.WithField("username", username).Warn("Неудачная попытка входа")
		return nil, common.ErrInvalidCredentials
	}

	session, err := s.sessions.Issue(s.creds.User)
	if err != nil {
		return nil, err
	}
	logger.Info("Оператор вошёл в панель")
	return session, nil
}

// Authorize проверяет токен сессии из cookie.
func (s *Service) Authorize(token string) (*Claims, error) {
	return s.sessions.Parse(token)
}
