// Package admin — repository.go работает с таблицей login_attempts.
package admin

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bancapix/server/internal/common"
)

// AttemptLog — журнал попыток входа.
type AttemptLog interface {
	LogAttempt(ctx context.Context, a LoginAttempt) error
	RecentFailures(ctx context.Context, remoteIP string, since time.Time) (int, error)
}

// Repository — журнал попыток в PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, a LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (username, remote_ip, success, attempted_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query, a.Username, a.RemoteIP, a.Success, a.AttemptedAt); err != nil {
		return common.Storage("login_attempts insert", err)
	}
	return nil
}

// RecentFailures — число неудачных попыток с адреса начиная с since.
func (r *Repository) RecentFailures(ctx context.Context, remoteIP string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE remote_ip = $1 AND success = FALSE AND attempted_at >= $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, remoteIP, since).Scan(&count); err != nil {
		return 0, common.Storage("login_attempts count", err)
	}
	return count, nil
}

// MemoryAttempts — журнал в памяти (тесты, запуск без базы).
type MemoryAttempts struct {
	mu       sync.Mutex
	attempts []LoginAttempt
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{}
}

func (m *MemoryAttempts) LogAttempt(_ context.Context, a LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *MemoryAttempts) RecentFailures(_ context.Context, remoteIP string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.RemoteIP == remoteIP && !a.Success && !a.AttemptedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// All — копия журнала.
func (m *MemoryAttempts) All() []LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LoginAttempt(nil), m.attempts...)
}
