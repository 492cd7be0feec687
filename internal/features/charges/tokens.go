// Package charges — tokens.go: реестр непрозрачных токенов платежей.
//
// Браузер получает только токен вида "tok_<hex>"; txid провайдера хранится
// здесь и наружу не уходит. Токен живёт 15 минут или до подтверждения.
package charges

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/bancapix/server/internal/common"
)

const (
	// TokenTTL — срок жизни токена.
	TokenTTL = 15 * time.Minute
	// SweepInterval — как часто фоновая задача чистит истёкшие токены.
	SweepInterval = time.Minute

	tokenPrefix = "tok_"
)

// Entry — то, что стоит за токеном.
type Entry struct {
	ProviderRef string
	CreatedAt   time.Time
}

// Registry — реестр токенов. Revoke условный: true получает ровно один
// вызывающий, и только он вправе записать депозит.
type Registry interface {
	Issue(providerRef string) (string, error)
	Resolve(token string) (string, error)
	Revoke(token string) (Entry, bool)
	// Restore возвращает отозванный токен, если запись депозита не удалась.
	Restore(token string, e Entry)
	Sweep() int
}

// MemoryRegistry — реестр в памяти процесса. Потеря при рестарте допустима:
// незавершённые платежи просто придётся создать заново.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry создаёт реестр со стандартным TTL.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]Entry),
		ttl:     TokenTTL,
		now:     time.Now,
	}
}

// Issue генерирует криптографически случайный токен.
func (r *MemoryRegistry) Issue(providerRef string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации токена: %w", err)
	}
	token := tokenPrefix + hex.EncodeToString(buf)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[token] = Entry{ProviderRef: providerRef, CreatedAt: r.now()}
	return token, nil
}

func (r *MemoryRegistry) expired(e Entry) bool {
	return r.now().Sub(e.CreatedAt) >= r.ttl
}

// Resolve возвращает txid провайдера или ErrTokenNotFound.
func (r *MemoryRegistry) Resolve(token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[token]
	if !ok || r.expired(e) {
		return "", common.ErrTokenNotFound
	}
	return e.ProviderRef, nil
}

// Revoke удаляет токен, если он ещё действителен.
func (r *MemoryRegistry) Revoke(token string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[token]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, token)
	if r.expired(e) {
		return Entry{}, false
	}
	return e, true
}

// Restore кладёт токен обратно с исходным временем создания.
func (r *MemoryRegistry) Restore(token string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[token] = e
}

// Sweep удаляет истёкшие токены и возвращает их число.
func (r *MemoryRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, e := range r.entries {
		if r.expired(e) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed
}

// Len — число токенов в реестре (включая ещё не вычищенные истёкшие).
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
