package ledger

import (
	"context"
	"time"

	"github.com/bancapix/server/internal/store"
)

// Service — чтение выписки.
type Service struct {
	store store.Store
	loc   *time.Location
	now   func() time.Time
}

func NewService(st store.Store, loc *time.Location) *Service {
	return &Service{store: st, loc: loc, now: time.Now}
}

// List возвращает записи по параметрам запроса, новые первыми.
func (s *Service) List(ctx context.Context, q Query) ([]store.LedgerEntry, error) {
	f, err := q.Filter(s.now(), s.loc)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListLedger(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []store.LedgerEntry{}
	}
	return entries, nil
}
