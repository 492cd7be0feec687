package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/store"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func TestQuery_Filter(t *testing.T) {
	// 15 марта, 01:30 по Сан-Паулу; в UTC это уже 04:30
	now := time.Date(2026, 3, 15, 4, 30, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		f, err := Query{}.Filter(now, saoPaulo)
		require.NoError(t, err)
		assert.Empty(t, f.Kind)
		assert.True(t, f.From.IsZero())
		assert.True(t, f.To.IsZero())
		assert.Equal(t, store.DefaultLedgerLimit, f.Limit)
	})

	t.Run("dates are inclusive in operator zone", func(t *testing.T) {
		f, err := Query{Kind: "payout", Name: " ana ", From: "2026-03-01", To: "2026-03-10"}.Filter(now, saoPaulo)
		require.NoError(t, err)
		assert.Equal(t, store.KindPayout, f.Kind)
		assert.Equal(t, "ana", f.Name)
		assert.True(t, f.From.Equal(time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)))
		assert.True(t, f.To.Equal(time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)))
	})

	t.Run("ranges", func(t *testing.T) {
		tomorrow := time.Date(2026, 3, 16, 0, 0, 0, 0, saoPaulo)
		for r, from := range map[string]time.Time{
			RangeToday: time.Date(2026, 3, 15, 0, 0, 0, 0, saoPaulo),
			Range7d:    time.Date(2026, 3, 9, 0, 0, 0, 0, saoPaulo),
			Range30d:   time.Date(2026, 2, 14, 0, 0, 0, 0, saoPaulo),
			RangeMonth: time.Date(2026, 3, 1, 0, 0, 0, 0, saoPaulo),
		} {
			f, err := Query{Range: r, From: "2020-01-01"}.Filter(now, saoPaulo)
			require.NoError(t, err, r)
			assert.True(t, f.From.Equal(from), r)
			assert.True(t, f.To.Equal(tomorrow), r)
		}
	})

	t.Run("limit is capped", func(t *testing.T) {
		f, err := Query{Limit: "5000"}.Filter(now, saoPaulo)
		require.NoError(t, err)
		assert.Equal(t, store.MaxLedgerLimit, f.Limit)
	})

	t.Run("fail, invalid", func(t *testing.T) {
		for name, q := range map[string]Query{
			"kind":     {Kind: "refund"},
			"limit":    {Limit: "dez"},
			"zero":     {Limit: "0"},
			"from":     {From: "01/03/2026"},
			"to":       {To: "2026-13-01"},
			"range":    {Range: "year"},
			"reversed": {From: "2026-03-10", To: "2026-03-01"},
		} {
			_, err := q.Filter(now, saoPaulo)
			require.ErrorIs(t, err, common.ErrInvalidInput, name)
		}
	})
}

func seed(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	for i, name := range []string{"Ana", "Bruno", "Ana Clara"} {
		d := &store.Deposit{ID: name, PayerName: name, DepositedCents: int64(1000 * (i + 1)), CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		_, err := st.ConfirmDeposit(ctx, d, "tx-"+name)
		require.NoError(t, err)
	}
}

func TestService_List(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)
	svc := NewService(st, saoPaulo)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }

	entries, err := svc.List(context.Background(), Query{Name: "ana"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Ana Clara", entries[0].PayerName)

	entries, err = svc.List(context.Background(), Query{Range: RangeToday})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestHandler_List(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)

	e := echo.New()
	NewHandler(NewService(st, saoPaulo)).Register(e.Group(""))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger?kind=deposit&limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"deposit"`)
	assert.NotContains(t, rec.Body.String(), "tx-", "ссылка провайдера не отдаётся")
}
