package payouts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/events"
	"github.com/bancapix/server/internal/store"
)

type recorder struct {
	mu      sync.Mutex
	events  []string
	actions []string
}

func (r *recorder) Publish(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	if change, ok := payload.(events.Change); ok && name == events.PayoutsChanged {
		r.actions = append(r.actions, change.Action)
	}
}

// payoutActions — Action каждого payouts-changed по порядку.
func (r *recorder) payoutActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// manualTimer срабатывает только из fireDue.
type manualTimer struct {
	due     time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fixture struct {
	svc      *Service
	archiver *Archiver
	store    *store.MemoryStore
	bus      *recorder
	now      time.Time
	timers   []*manualTimer
	mu       sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		bus:   &recorder{},
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	}
	f.archiver = NewArchiver(f.store, f.bus)
	f.archiver.now = clock
	f.archiver.afterFunc = func(d time.Duration, fn func()) timer {
		mt := &manualTimer{due: d, f: fn}
		f.mu.Lock()
		f.timers = append(f.timers, mt)
		f.mu.Unlock()
		return mt
	}
	f.svc = NewService(f.store, f.archiver, f.bus)
	f.svc.now = clock
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// fireDue запускает все не остановленные таймеры, срок которых наступил.
func (f *fixture) fireDue(since time.Duration) {
	f.mu.Lock()
	var due []*manualTimer
	for _, mt := range f.timers {
		if !mt.stopped && mt.due <= since {
			due = append(due, mt)
		}
	}
	f.mu.Unlock()
	for _, mt := range due {
		mt.stopped = true
		mt.f()
	}
}

// payout создаёт депозит и переводит его в выплаты.
func (f *fixture) payout(t *testing.T, id string, cents int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.InsertDeposit(ctx, &store.Deposit{ID: id, PayerName: "Ana " + id, DepositedCents: cents, CreatedAt: f.now}))
	_, err := f.store.AdvanceDeposit(ctx, id, nil)
	require.NoError(t, err)
}

func ids(list []store.Payout) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.ID)
	}
	return out
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]store.PayoutStatus{
		"paid":     store.StatusPaid,
		"PAGO":     store.StatusPaid,
		"unpaid":   store.StatusUnpaid,
		"nao_pago": store.StatusUnpaid,
	} {
		got, err := parseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseStatus("cancelado")
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = parseStatus("")
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.payout(t, "p1", 5000)

	p, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "paid"})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaid, p.Status)
	require.NotNil(t, p.PaidAt)
	assert.True(t, p.PaidAt.Equal(f.now))
	assert.Equal(t, 1, f.archiver.Pending())
	assert.Equal(t, []string{events.PayoutsChanged, events.LedgerChanged}, f.bus.names())

	// повторное paid ничего не меняет
	f.advance(30 * time.Second)
	again, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "pago"})
	require.NoError(t, err)
	assert.True(t, again.PaidAt.Equal(*p.PaidAt))
	assert.Equal(t, []string{events.ActionPaid, events.ActionUpdated}, f.bus.payoutActions(),
		"повторное paid не выглядит новой оплатой")
	assert.Equal(t, []string{events.PayoutsChanged, events.LedgerChanged, events.PayoutsChanged}, f.bus.names())

	entries, err := f.store.ListLedger(ctx, store.LedgerFilter{Kind: store.KindPayout})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5000), entries[0].AmountCents)

	// снятие оплаты не трогает выписку и отменяет таймер
	un, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "unpaid"})
	require.NoError(t, err)
	assert.Nil(t, un.PaidAt)
	assert.Zero(t, f.archiver.Pending())

	entries, err = f.store.ListLedger(ctx, store.LedgerFilter{Kind: store.KindPayout})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = f.svc.SetStatus(ctx, "missing", SetStatusRequest{Status: "paid"})
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "talvez"})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAutoArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("paid payout disappears after grace", func(t *testing.T) {
		f := newFixture(t)
		f.payout(t, "p1", 5000)
		f.payout(t, "p2", 3000)

		_, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "paid"})
		require.NoError(t, err)

		f.advance(179 * time.Second)
		f.fireDue(179 * time.Second)
		list, err := f.svc.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"p1", "p2"}, ids(list))

		f.advance(2 * time.Second)
		f.fireDue(181 * time.Second)
		list, err = f.svc.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, ids(list))
		assert.Zero(t, f.archiver.Pending())

		entries, err := f.store.ListLedger(ctx, store.LedgerFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 1, "архивация не трогает выписку")
	})

	t.Run("lazy sweep without timers", func(t *testing.T) {
		f := newFixture(t)
		f.payout(t, "p1", 5000)

		_, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "paid"})
		require.NoError(t, err)

		f.advance(181 * time.Second)
		list, err := f.svc.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.Zero(t, f.archiver.Pending())
		assert.Contains(t, f.bus.names(), events.PayoutsChanged)
	})

	t.Run("revert before grace keeps record as deposit", func(t *testing.T) {
		f := newFixture(t)
		f.payout(t, "p1", 5000)

		_, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "paid"})
		require.NoError(t, err)

		f.advance(60 * time.Second)
		d, err := f.svc.Revert(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), d.DepositedCents)
		require.NotNil(t, d.AdjustedCents)
		assert.Equal(t, int64(5000), *d.AdjustedCents)
		assert.Zero(t, f.archiver.Pending())

		f.advance(200 * time.Second)
		f.fireDue(time.Hour)
		_, err = f.svc.List(ctx)
		require.NoError(t, err)

		got, err := f.store.GetDeposit(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "p1", got.ID)
	})

	t.Run("timer after manual delete is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.payout(t, "p1", 5000)

		_, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "paid"})
		require.NoError(t, err)

		// таймер уже сработал, но удаление ещё не дошло до хранилища
		f.mu.Lock()
		fired := append([]*manualTimer(nil), f.timers...)
		f.mu.Unlock()

		require.NoError(t, f.svc.Delete(ctx, "p1"))
		f.advance(5 * time.Minute)
		for _, mt := range fired {
			mt.f()
		}
		require.ErrorIs(t, f.svc.Delete(ctx, "p1"), common.ErrNotFound)
	})

	t.Run("re-paid payout waits for its new paidAt", func(t *testing.T) {
		f := newFixture(t)
		f.payout(t, "p1", 5000)

		_, err := f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "paid"})
		require.NoError(t, err)
		f.advance(2 * time.Minute)
		_, err = f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "unpaid"})
		require.NoError(t, err)
		_, err = f.svc.SetStatus(ctx, "p1", SetStatusRequest{Status: "paid"})
		require.NoError(t, err)

		f.advance(2 * time.Minute)
		list, err := f.svc.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, ids(list))
	})
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.payout(t, "p1", 5000)
	f.payout(t, "p2", 3000)

	paidAt := f.now
	_, _, err := f.store.SetPayoutStatus(ctx, "p1", store.StatusPaid, paidAt)
	require.NoError(t, err)

	// новый процесс после рестарта
	f.advance(time.Minute)
	n, err := f.archiver.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var due time.Duration
	f.mu.Lock()
	for _, mt := range f.timers {
		due = mt.due
	}
	f.mu.Unlock()
	assert.Equal(t, 2*time.Minute, due, "остаток считается от paidAt")

	f.advance(2 * time.Minute)
	f.fireDue(due)
	list, err := f.store.ListPayouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids(list))
}

func TestRevertDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.payout(t, "p1", 5000)
	f.payout(t, "p2", 3000)

	_, err := f.svc.Revert(ctx, "p1")
	require.NoError(t, err)
	_, err = f.svc.Revert(ctx, "p1")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, "p2"))
	require.ErrorIs(t, f.svc.Delete(ctx, "p2"), common.ErrNotFound)

	assert.Equal(t, []string{
		events.PayoutsChanged, events.DepositsChanged,
		events.PayoutsChanged,
	}, f.bus.names())
}

func TestArchiverStop(t *testing.T) {
	f := newFixture(t)
	f.archiver.Schedule("a", f.now)
	assert.Equal(t, 1, f.archiver.Pending())

	f.archiver.Stop()
	assert.Zero(t, f.archiver.Pending())

	f.archiver.Schedule("b", f.now)
	assert.Zero(t, f.archiver.Pending())
}
