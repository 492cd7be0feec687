package deposits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/events"
	"github.com/bancapix/server/internal/features/charges"
	"github.com/bancapix/server/internal/psp"
	"github.com/bancapix/server/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(name string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// failingStore ломает запись подтверждённого депозита.
type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) ConfirmDeposit(context.Context, *store.Deposit, string) (*store.LedgerEntry, error) {
	return nil, f.err
}

type fixture struct {
	svc     *Service
	store   *store.MemoryStore
	gateway *psp.Fake
	tokens  *charges.MemoryRegistry
	bus     *recorder
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.NewMemory(),
		gateway: psp.NewFake(),
		tokens:  charges.NewMemoryRegistry(),
		bus:     &recorder{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, f.tokens, f.gateway, f.bus)
	f.svc.now = func() time.Time { return f.now }
	return f
}

// charge создаёт платёж через сервис платежей и возвращает токен и txid.
func (f *fixture) charge(t *testing.T, cents int64) (string, string) {
	t.Helper()
	res, err := charges.NewService(f.gateway, f.tokens).Create(context.Background(), charges.CreateRequest{
		PayerName:   "Ana",
		AmountCents: &cents,
	})
	require.NoError(t, err)
	ref, err := f.tokens.Resolve(res.Token)
	require.NoError(t, err)
	return res.Token, ref
}

func cents(v int64) *int64 { return &v }

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("ok, then replay is not found", func(t *testing.T) {
		f := newFixture(t)
		token, ref := f.charge(t, 1500)
		f.gateway.Pay(ref)

		req := ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500), KeyType: "aleatoria", KeyValue: "k-1", Message: "oi"}
		d, err := f.svc.Confirm(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, d.ID)
		assert.NotEqual(t, ref, d.ID, "id записи не совпадает с txid провайдера")
		assert.Equal(t, "Ana", d.PayerName)
		assert.Equal(t, int64(1500), d.DepositedCents)
		assert.Equal(t, common.KeyTypeRandom, d.KeyType)
		assert.True(t, d.CreatedAt.Equal(f.now))

		entries, err := f.store.ListLedger(ctx, store.LedgerFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, store.KindDeposit, entries[0].Kind)
		assert.Equal(t, d.ID, entries[0].RefID)

		assert.Equal(t, []string{events.DepositsChanged, events.LedgerChanged}, f.bus.names())

		_, err = f.svc.Confirm(ctx, req)
		require.ErrorIs(t, err, common.ErrTokenNotFound)

		list, err := f.store.ListDeposits(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("fail, not completed keeps token", func(t *testing.T) {
		f := newFixture(t)
		token, _ := f.charge(t, 1500)

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500)})
		require.ErrorIs(t, err, common.ErrNotCompleted)

		_, err = f.tokens.Resolve(token)
		require.NoError(t, err, "клиент продолжает опрос")
	})

	t.Run("fail, amount mismatch creates nothing", func(t *testing.T) {
		f := newFixture(t)
		token, ref := f.charge(t, 5000)
		f.gateway.SetStatus(ref, psp.StatusCompleted, "49.99")

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(5000)})
		require.ErrorIs(t, err, common.ErrAmountMismatch)

		list, err := f.store.ListDeposits(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
		entries, err := f.store.ListLedger(ctx, store.LedgerFilter{})
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Empty(t, f.bus.names())
	})

	t.Run("ok, provider amount rounds to nearest cent", func(t *testing.T) {
		f := newFixture(t)
		token, ref := f.charge(t, 5000)
		f.gateway.SetStatus(ref, psp.StatusCompleted, "49.995")

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(5000)})
		require.NoError(t, err)
	})

	t.Run("fail, unparseable provider amount", func(t *testing.T) {
		f := newFixture(t)
		token, ref := f.charge(t, 1500)
		f.gateway.SetStatus(ref, psp.StatusCompleted, "quinze")

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500)})
		require.ErrorIs(t, err, common.ErrUpstreamData)
	})

	t.Run("fail, provider amount overflows cents", func(t *testing.T) {
		f := newFixture(t)
		token, ref := f.charge(t, 1500)
		// 2^64 центов + 1500 при переполнении int64 дало бы ровно 1500
		f.gateway.SetStatus(ref, psp.StatusCompleted, "184467440737095531.16")

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500)})
		require.ErrorIs(t, err, common.ErrUpstreamData)

		list, err := f.store.ListDeposits(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("fail, provider down", func(t *testing.T) {
		f := newFixture(t)
		token, _ := f.charge(t, 1500)
		f.gateway.Err = common.ErrUpstream

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500)})
		require.ErrorIs(t, err, common.ErrUpstream)
	})

	t.Run("fail, invalid input", func(t *testing.T) {
		f := newFixture(t)
		for name, req := range map[string]ConfirmRequest{
			"no token":      {PayerName: "Ana", AmountCents: cents(1500)},
			"no name":       {Token: "tok_x", AmountCents: cents(1500)},
			"no amount":     {Token: "tok_x", PayerName: "Ana"},
			"zero amount":   {Token: "tok_x", PayerName: "Ana", AmountCents: cents(0)},
			"bad key type":  {Token: "tok_x", PayerName: "Ana", AmountCents: cents(1500), KeyType: "boleto"},
			"bad cpf key":   {Token: "tok_x", PayerName: "Ana", AmountCents: cents(1500), KeyType: "cpf", KeyValue: "123"},
			"value no type": {Token: "tok_x", PayerName: "Ana", AmountCents: cents(1500), KeyValue: "x"},
		} {
			_, err := f.svc.Confirm(ctx, req)
			require.ErrorIs(t, err, common.ErrInvalidInput, name)
		}
		assert.Zero(t, f.gateway.QueryCalls.Load())
	})

	t.Run("fail, unknown token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: "tok_nope", PayerName: "Ana", AmountCents: cents(1500)})
		require.ErrorIs(t, err, common.ErrTokenNotFound)
	})

	t.Run("storage failure restores token", func(t *testing.T) {
		f := newFixture(t)
		token, ref := f.charge(t, 1500)
		f.gateway.Pay(ref)
		f.svc.store = &failingStore{Store: f.store, err: common.Storage("insert", errors.New("boom"))}

		_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500)})
		require.ErrorIs(t, err, common.ErrStorage)

		_, err = f.tokens.Resolve(token)
		require.NoError(t, err, "можно повторить подтверждение")

		f.svc.store = f.store
		_, err = f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500)})
		require.NoError(t, err)
	})

	t.Run("charge already recorded", func(t *testing.T) {
		f := newFixture(t)
		token, ref := f.charge(t, 1500)
		f.gateway.Pay(ref)
		_, err := f.store.ConfirmDeposit(ctx, &store.Deposit{ID: "other", PayerName: "Ana", DepositedCents: 1500, CreatedAt: f.now}, ref)
		require.NoError(t, err)

		_, err = f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(1500)})
		require.ErrorIs(t, err, common.ErrTokenNotFound)
	})
}

func TestConfirm_AtMostOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	token, ref := f.charge(t, 2000)
	f.gateway.Pay(ref)

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		notFound int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Confirm(ctx, ConfirmRequest{Token: token, PayerName: "Ana", AmountCents: cents(2000)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, common.ErrTokenNotFound):
				notFound++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, notFound)

	list, err := f.store.ListDeposits(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	entries, err := f.store.ListLedger(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCreateAdjustDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.svc.Create(ctx, CreateRequest{PayerName: "Bruno", AmountCents: cents(3000), KeyType: "telefone", KeyValue: "+5511999999999"})
	require.NoError(t, err)
	assert.Equal(t, common.KeyTypePhone, d.KeyType)

	entries, err := f.store.ListLedger(ctx, store.LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "ручной ввод не попадает в выписку")

	_, err = f.svc.Adjust(ctx, d.ID, AdjustRequest{AdjustedAmountCents: cents(-1)})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.svc.Adjust(ctx, d.ID, AdjustRequest{})
	require.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.svc.Adjust(ctx, "missing", AdjustRequest{AdjustedAmountCents: cents(1)})
	require.ErrorIs(t, err, common.ErrNotFound)

	updated, err := f.svc.Adjust(ctx, d.ID, AdjustRequest{AdjustedAmountCents: cents(2500)})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), *updated.AdjustedCents)

	require.NoError(t, f.svc.Delete(ctx, d.ID))
	require.ErrorIs(t, f.svc.Delete(ctx, d.ID), common.ErrNotFound)

	assert.Equal(t, []string{events.DepositsChanged, events.DepositsChanged, events.DepositsChanged}, f.bus.names())
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	plain, err := f.svc.Create(ctx, CreateRequest{PayerName: "Ana", AmountCents: cents(5000)})
	require.NoError(t, err)
	edited, err := f.svc.Create(ctx, CreateRequest{PayerName: "Bruno", AmountCents: cents(5000)})
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, edited.ID, AdjustRequest{AdjustedAmountCents: cents(7000)})
	require.NoError(t, err)

	p, err := f.svc.Advance(ctx, plain.ID, AdvanceRequest{})
	require.NoError(t, err)
	assert.Equal(t, plain.ID, p.ID)
	assert.Equal(t, int64(5000), p.AmountCents)

	p, err = f.svc.Advance(ctx, edited.ID, AdvanceRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(7000), p.AmountCents)

	_, err = f.svc.Advance(ctx, plain.ID, AdvanceRequest{})
	require.ErrorIs(t, err, common.ErrNotFound)

	list, err := f.store.ListDeposits(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	names := f.bus.names()
	assert.Equal(t, []string{events.DepositsChanged, events.PayoutsChanged}, names[len(names)-2:])
}
