// Package storetest — общий набор проверок для любой реализации store.Store.
// Запускается и для MemoryStore, и для PostgresStore.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/store"
)

// Factory возвращает пустое хранилище для одного подтеста.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newDeposit(name string, cents int64, createdAt time.Time) *store.Deposit {
	return &store.Deposit{
		ID:             uuid.NewString(),
		PayerName:      name,
		DepositedCents: cents,
		KeyType:        common.KeyTypeEmail,
		KeyValue:       name + "@example.com",
		CreatedAt:      createdAt,
	}
}

func ptr(v int64) *int64 { return &v }

// Run прогоняет все проверки контракта.
func Run(t *testing.T, factory Factory) {
	t.Run("deposits", func(t *testing.T) { testDeposits(t, factory(t)) })
	t.Run("confirm deposit", func(t *testing.T) { testConfirmDeposit(t, factory(t)) })
	t.Run("advance", func(t *testing.T) { testAdvance(t, factory(t)) })
	t.Run("payout status", func(t *testing.T) { testPayoutStatus(t, factory(t)) })
	t.Run("revert", func(t *testing.T) { testRevert(t, factory(t)) })
	t.Run("archive", func(t *testing.T) { testArchive(t, factory(t)) })
	t.Run("ledger filter", func(t *testing.T) { testLedgerFilter(t, factory(t)) })
	t.Run("concurrent advance", func(t *testing.T) { testConcurrentAdvance(t, factory(t)) })
	t.Run("concurrent mark paid", func(t *testing.T) { testConcurrentMarkPaid(t, factory(t)) })
}

func testDeposits(t *testing.T, s store.Store) {
	ctx := context.Background()

	older := newDeposit("Ana", 1500, base)
	newer := newDeposit("Bruno", 2500, base.Add(time.Minute))
	require.NoError(t, s.InsertDeposit(ctx, older))
	require.NoError(t, s.InsertDeposit(ctx, newer))
	require.ErrorIs(t, s.InsertDeposit(ctx, older), common.ErrConflict)

	list, err := s.ListDeposits(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	got, err := s.GetDeposit(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.PayerName)
	assert.Equal(t, int64(1500), got.DepositedCents)
	assert.Nil(t, got.AdjustedCents)
	assert.True(t, got.CreatedAt.Equal(base))

	updated, err := s.SetAdjustedAmount(ctx, older.ID, ptr(1200))
	require.NoError(t, err)
	require.NotNil(t, updated.AdjustedCents)
	assert.Equal(t, int64(1200), *updated.AdjustedCents)
	assert.Equal(t, int64(1500), updated.DepositedCents)

	_, err = s.SetAdjustedAmount(ctx, "missing", ptr(1))
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.DeleteDeposit(ctx, older.ID))
	require.ErrorIs(t, s.DeleteDeposit(ctx, older.ID), common.ErrNotFound)
	_, err = s.GetDeposit(ctx, older.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func testConfirmDeposit(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := newDeposit("Ana", 1500, base)
	entry, err := s.ConfirmDeposit(ctx, d, "txid-1")
	require.NoError(t, err)
	assert.Equal(t, store.KindDeposit, entry.Kind)
	assert.Equal(t, d.ID, entry.RefID)
	assert.Equal(t, int64(1500), entry.AmountCents)

	// Тот же платёж провайдера второй раз не записывается
	dup := newDeposit("Ana", 1500, base)
	_, err = s.ConfirmDeposit(ctx, dup, "txid-1")
	require.ErrorIs(t, err, common.ErrConflict)

	_, err = s.GetDeposit(ctx, dup.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	entries, err := s.ListLedger(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "txid-1", entries[0].ChargeRef)
}

func testAdvance(t *testing.T, s store.Store) {
	ctx := context.Background()

	plain := newDeposit("Ana", 5000, base)
	adjusted := newDeposit("Bruno", 5000, base)
	overridden := newDeposit("Carla", 5000, base)
	for _, d := range []*store.Deposit{plain, adjusted, overridden} {
		require.NoError(t, s.InsertDeposit(ctx, d))
	}
	_, err := s.SetAdjustedAmount(ctx, adjusted.ID, ptr(7000))
	require.NoError(t, err)

	p, err := s.AdvanceDeposit(ctx, plain.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, plain.ID, p.ID)
	assert.Equal(t, int64(5000), p.AmountCents)
	assert.Equal(t, store.StatusUnpaid, p.Status)
	assert.Nil(t, p.PaidAt)
	assert.True(t, p.CreatedAt.Equal(base))
	assert.Equal(t, plain.KeyValue, p.KeyValue)

	p, err = s.AdvanceDeposit(ctx, adjusted.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), p.AmountCents)

	p, err = s.AdvanceDeposit(ctx, overridden.ID, ptr(4200))
	require.NoError(t, err)
	assert.Equal(t, int64(4200), p.AmountCents)

	// Депозита больше нет, выплата одна
	_, err = s.GetDeposit(ctx, plain.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.AdvanceDeposit(ctx, plain.ID, nil)
	require.ErrorIs(t, err, common.ErrNotFound)

	stored, err := s.GetPayout(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), stored.AmountCents)

	payouts, err := s.ListPayouts(ctx)
	require.NoError(t, err)
	assert.Len(t, payouts, 3)
}

func testPayoutStatus(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := newDeposit("Ana", 3000, base)
	require.NoError(t, s.InsertDeposit(ctx, d))
	_, err := s.AdvanceDeposit(ctx, d.ID, nil)
	require.NoError(t, err)

	paidAt := base.Add(time.Hour)
	p, entry, err := s.SetPayoutStatus(ctx, d.ID, store.StatusPaid, paidAt)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, store.StatusPaid, p.Status)
	require.NotNil(t, p.PaidAt)
	assert.True(t, p.PaidAt.Equal(paidAt))
	assert.Equal(t, store.KindPayout, entry.Kind)
	assert.Equal(t, int64(3000), entry.AmountCents)

	// Повторное «оплачено» — без новой записи и без сдвига paidAt
	p, entry, err = s.SetPayoutStatus(ctx, d.ID, store.StatusPaid, paidAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.True(t, p.PaidAt.Equal(paidAt))

	p, entry, err = s.SetPayoutStatus(ctx, d.ID, store.StatusUnpaid, paidAt.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, store.StatusUnpaid, p.Status)
	assert.Nil(t, p.PaidAt)

	entries, err := s.ListLedger(ctx, store.LedgerFilter{Kind: store.KindPayout})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "возврат в unpaid не удаляет запись выписки")

	_, entry, err = s.SetPayoutStatus(ctx, d.ID, store.StatusPaid, paidAt.Add(3*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, entry)

	entries, err = s.ListLedger(ctx, store.LedgerFilter{Kind: store.KindPayout})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, _, err = s.SetPayoutStatus(ctx, "missing", store.StatusPaid, paidAt)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func testRevert(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := newDeposit("Ana", 5000, base)
	d.Message = "obrigado"
	require.NoError(t, s.InsertDeposit(ctx, d))
	_, err := s.AdvanceDeposit(ctx, d.ID, ptr(4500))
	require.NoError(t, err)
	_, _, err = s.SetPayoutStatus(ctx, d.ID, store.StatusPaid, base.Add(time.Hour))
	require.NoError(t, err)

	back, err := s.RevertPayout(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, back.ID)
	assert.Equal(t, int64(4500), back.DepositedCents)
	require.NotNil(t, back.AdjustedCents)
	assert.Equal(t, int64(4500), *back.AdjustedCents)
	assert.Equal(t, "obrigado", back.Message)
	assert.True(t, back.CreatedAt.Equal(base))

	_, err = s.GetPayout(ctx, d.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.RevertPayout(ctx, d.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	got, err := s.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), got.ResolvedAmount())

	entries, err := s.ListLedger(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func testArchive(t *testing.T, s store.Store) {
	ctx := context.Background()

	paid := newDeposit("Ana", 1000, base)
	unpaid := newDeposit("Bruno", 1000, base)
	recent := newDeposit("Carla", 1000, base)
	for _, d := range []*store.Deposit{paid, unpaid, recent} {
		require.NoError(t, s.InsertDeposit(ctx, d))
		_, err := s.AdvanceDeposit(ctx, d.ID, nil)
		require.NoError(t, err)
	}
	_, _, err := s.SetPayoutStatus(ctx, paid.ID, store.StatusPaid, base)
	require.NoError(t, err)
	_, _, err = s.SetPayoutStatus(ctx, recent.ID, store.StatusPaid, base.Add(time.Hour))
	require.NoError(t, err)

	ok, err := s.ArchivePayout(ctx, paid.ID, base.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "ещё не истёк срок")

	ok, err = s.ArchivePayout(ctx, unpaid.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "неоплаченные не архивируются")

	ok, err = s.ArchivePayout(ctx, paid.ID, base)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ArchivePayout(ctx, paid.ID, base)
	require.NoError(t, err)
	assert.False(t, ok, "повторная архивация — не ошибка")

	ids, err := s.ArchivePaidPayouts(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.ArchivePaidPayouts(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{recent.ID}, ids)

	payouts, err := s.ListPayouts(ctx)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, unpaid.ID, payouts[0].ID)

	entries, err := s.ListLedger(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "архивация не трогает выписку")
}

func testLedgerFilter(t *testing.T, s store.Store) {
	ctx := context.Background()

	ana := newDeposit("Ana Souza", 1000, base)
	bruno := newDeposit("Bruno", 2000, base.Add(24*time.Hour))
	carla := newDeposit("Carla_100%", 3000, base.Add(48*time.Hour))
	_, err := s.ConfirmDeposit(ctx, ana, "c-ana")
	require.NoError(t, err)
	_, err = s.ConfirmDeposit(ctx, bruno, "c-bruno")
	require.NoError(t, err)
	_, err = s.ConfirmDeposit(ctx, carla, "c-carla")
	require.NoError(t, err)

	_, err = s.AdvanceDeposit(ctx, ana.ID, nil)
	require.NoError(t, err)
	_, _, err = s.SetPayoutStatus(ctx, ana.ID, store.StatusPaid, base.Add(72*time.Hour))
	require.NoError(t, err)

	all, err := s.ListLedger(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, store.KindPayout, all[0].Kind, "по убыванию createdAt")

	byKind, err := s.ListLedger(ctx, store.LedgerFilter{Kind: store.KindDeposit})
	require.NoError(t, err)
	assert.Len(t, byKind, 3)

	byName, err := s.ListLedger(ctx, store.LedgerFilter{Name: "ana sou"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	// % и _ в имени ищутся буквально
	literal, err := s.ListLedger(ctx, store.LedgerFilter{Name: "a_100%"})
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, carla.ID, literal[0].RefID)
	wildcard, err := s.ListLedger(ctx, store.LedgerFilter{Name: "%"})
	require.NoError(t, err)
	assert.Len(t, wildcard, 1)

	window, err := s.ListLedger(ctx, store.LedgerFilter{
		From: base.Add(24 * time.Hour),
		To:   base.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, carla.ID, window[0].RefID)
	assert.Equal(t, bruno.ID, window[1].RefID)

	limited, err := s.ListLedger(ctx, store.LedgerFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testConcurrentAdvance(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := newDeposit("Ana", 1000, base)
	require.NoError(t, s.InsertDeposit(ctx, d))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdvanceDeposit(ctx, d.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, common.ErrNotFound):
				notFound++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, notFound)

	payouts, err := s.ListPayouts(ctx)
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
}

func testConcurrentMarkPaid(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := newDeposit("Ana", 1000, base)
	require.NoError(t, s.InsertDeposit(ctx, d))
	_, err := s.AdvanceDeposit(ctx, d.ID, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.SetPayoutStatus(ctx, d.ID, store.StatusPaid, base.Add(time.Hour))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := s.ListLedger(ctx, store.LedgerFilter{Kind: store.KindPayout})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
