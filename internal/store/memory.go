package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bancapix/server/internal/common"
)

// MemoryStore — Store в памяти процесса. Используется в тестах и для
// локального запуска без базы. Один мьютекс сериализует все операции,
// поэтому переходы атомарны так же, как транзакции в PostgresStore.
type MemoryStore struct {
	mu         sync.Mutex
	deposits   map[string]Deposit
	payouts    map[string]Payout
	ledger     []LedgerEntry
	chargeRefs map[string]struct{}
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		deposits:   make(map[string]Deposit),
		payouts:    make(map[string]Payout),
		chargeRefs: make(map[string]struct{}),
	}
}

var _ Store = (*MemoryStore)(nil)

// idTaken — id занят в любой из стадий.
func (s *MemoryStore) idTaken(id string) bool {
	_, inDeposits := s.deposits[id]
	_, inPayouts := s.payouts[id]
	return inDeposits || inPayouts
}

func (s *MemoryStore) InsertDeposit(_ context.Context, d *Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idTaken(d.ID) {
		return fmt.Errorf("%w: id %s", common.ErrConflict, d.ID)
	}
	s.deposits[d.ID] = cloneDeposit(*d)
	return nil
}

func (s *MemoryStore) ConfirmDeposit(_ context.Context, d *Deposit, chargeRef string) (*LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idTaken(d.ID) {
		return nil, fmt.Errorf("%w: id %s", common.ErrConflict, d.ID)
	}
	if chargeRef != "" {
		if _, dup := s.chargeRefs[chargeRef]; dup {
			return nil, fmt.Errorf("%w: charge_ref", common.ErrConflict)
		}
		s.chargeRefs[chargeRef] = struct{}{}
	}

	s.deposits[d.ID] = cloneDeposit(*d)
	entry := LedgerEntry{
		ID:          uuid.NewString(),
		RefID:       d.ID,
		Kind:        KindDeposit,
		PayerName:   d.PayerName,
		AmountCents: d.DepositedCents,
		ChargeRef:   chargeRef,
		CreatedAt:   d.CreatedAt,
	}
	s.ledger = append(s.ledger, entry)
	return &entry, nil
}

func (s *MemoryStore) GetDeposit(_ context.Context, id string) (*Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	d = cloneDeposit(d)
	return &d, nil
}

func (s *MemoryStore) ListDeposits(_ context.Context) ([]Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]Deposit, 0, len(s.deposits))
	for _, d := range s.deposits {
		list = append(list, cloneDeposit(d))
	}
	sort.Slice(list, func(i, j int) bool {
		return newerFirst(list[i].CreatedAt, list[j].CreatedAt, list[i].ID, list[j].ID)
	})
	return list, nil
}

func (s *MemoryStore) SetAdjustedAmount(_ context.Context, id string, cents *int64) (*Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if cents == nil {
		d.AdjustedCents = nil
	} else {
		v := *cents
		d.AdjustedCents = &v
	}
	s.deposits[id] = d
	d = cloneDeposit(d)
	return &d, nil
}

func (s *MemoryStore) DeleteDeposit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deposits[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.deposits, id)
	return nil
}

func (s *MemoryStore) AdvanceDeposit(_ context.Context, id string, override *int64) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	p := payoutFromDeposit(&d, override)
	s.payouts[id] = *p
	delete(s.deposits, id)
	return p, nil
}

func (s *MemoryStore) GetPayout(_ context.Context, id string) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListPayouts(_ context.Context) ([]Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]Payout, 0, len(s.payouts))
	for _, p := range s.payouts {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return newerFirst(list[i].CreatedAt, list[j].CreatedAt, list[i].ID, list[j].ID)
	})
	return list, nil
}

func (s *MemoryStore) SetPayoutStatus(_ context.Context, id string, status PayoutStatus, at time.Time) (*Payout, *LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[id]
	if !ok {
		return nil, nil, common.ErrNotFound
	}
	if p.Status == status {
		return &p, nil, nil
	}

	var entry *LedgerEntry
	switch status {
	case StatusPaid:
		paidAt := at
		p.Status = StatusPaid
		p.PaidAt = &paidAt
		entry = &LedgerEntry{
			ID:          uuid.NewString(),
			RefID:       p.ID,
			Kind:        KindPayout,
			PayerName:   p.PayerName,
			AmountCents: p.AmountCents,
			CreatedAt:   at,
		}
		s.ledger = append(s.ledger, *entry)
	case StatusUnpaid:
		p.Status = StatusUnpaid
		p.PaidAt = nil
	default:
		return nil, nil, common.InvalidInput("неизвестный статус %q", status)
	}

	s.payouts[id] = p
	return &p, entry, nil
}

func (s *MemoryStore) RevertPayout(_ context.Context, id string) (*Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	d := depositFromPayout(&p)
	s.deposits[id] = cloneDeposit(*d)
	delete(s.payouts, id)
	return d, nil
}

func (s *MemoryStore) DeletePayout(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payouts[id]; !ok {
		return common.ErrNotFound
	}
	delete(s.payouts, id)
	return nil
}

func archivable(p Payout, cutoff time.Time) bool {
	return p.Status == StatusPaid && p.PaidAt != nil && !p.PaidAt.After(cutoff)
}

func (s *MemoryStore) ArchivePayout(_ context.Context, id string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[id]
	if !ok || !archivable(p, cutoff) {
		return false, nil
	}
	delete(s.payouts, id)
	return true, nil
}

func (s *MemoryStore) ArchivePaidPayouts(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, p := range s.payouts {
		if archivable(p, cutoff) {
			ids = append(ids, id)
			delete(s.payouts, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListLedger(_ context.Context, f LedgerFilter) ([]LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToLower(strings.TrimSpace(f.Name))
	list := make([]LedgerEntry, 0)
	for _, e := range s.ledger {
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(e.PayerName), name) {
			continue
		}
		if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
			continue
		}
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		return newerFirst(list[i].CreatedAt, list[j].CreatedAt, list[i].ID, list[j].ID)
	})
	if limit := f.EffectiveLimit(); len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func newerFirst(a, b time.Time, idA, idB string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return idA < idB
}

func cloneDeposit(d Deposit) Deposit {
	if d.AdjustedCents != nil {
		v := *d.AdjustedCents
		d.AdjustedCents = &v
	}
	return d
}
