package admin

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bancapix/server/internal/common"
)

// Claims — содержимое JWT сессии. CSRF привязан к сессии: заголовок
// X-CSRF-Token изменяющего запроса должен совпасть с этим значением.
type Claims struct {
	CSRF string `json:"csrf"`
	jwt.RegisteredClaims
}

// Sessions выпускает и проверяет JWT сессий (HS256).
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: SessionTTL, now: time.Now}
}

// Issue выпускает сессию для user с новым CSRF-токеном.
func (s *Sessions) Issue(user string) (*Session, error) {
	csrf, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	now := s.now()
	expires := now.Add(s.ttl)

	claims := Claims{
		CSRF: csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("ошибка подписи сессии: %w", err)
	}
	return &Session{User: user, Token: token, CSRF: csrf, ExpiresAt: expires}, nil
}

// Parse проверяет подпись и срок. Любая проблема — ErrUnauthorized.
func (s *Sessions) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.CSRF == "" {
		return nil, common.ErrUnauthorized
	}
	return &claims, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ошибка генерации токена: %w", err)
	}
	return hex.EncodeToString(b), nil
}
