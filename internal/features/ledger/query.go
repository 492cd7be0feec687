// Package ledger — выписка (extratos): только чтение с фильтрами.
package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/store"
)

const dateLayout = "2006-01-02"

// Быстрые периоды
const (
	RangeToday = "today"
	Range7d    = "7d"
	Range30d   = "30d"
	RangeMonth = "month"
)

// Query — параметры GET /ledger как они пришли в строке запроса.
type Query struct {
	Kind  string `query:"kind"`
	Name  string `query:"name"`
	From  string `query:"from"`
	To    string `query:"to"`
	Range string `query:"range"`
	Limit string `query:"limit"`
}

// Filter переводит параметры в фильтр хранилища.
//
// Даты from/to включительные и считаются в поясе оператора (loc).
// range имеет приоритет над from/to и отсчитывается от now.
func (q Query) Filter(now time.Time, loc *time.Location) (store.LedgerFilter, error) {
	var f store.LedgerFilter

	switch strings.ToLower(strings.TrimSpace(q.Kind)) {
	case "":
	case string(store.KindDeposit):
		f.Kind = store.KindDeposit
	case string(store.KindPayout):
		f.Kind = store.KindPayout
	default:
		return f, common.InvalidInput("kind должен быть deposit или payout")
	}

	f.Name = strings.TrimSpace(q.Name)

	if l := strings.TrimSpace(q.Limit); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return f, common.InvalidInput("limit должен быть положительным целым")
		}
		f.Limit = n
	}
	f.Limit = f.EffectiveLimit()

	if r := strings.TrimSpace(q.Range); r != "" {
		from, to, err := rangeBounds(r, now, loc)
		if err != nil {
			return f, err
		}
		f.From, f.To = from, to
		return f, nil
	}

	if q.From != "" {
		d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(q.From), loc)
		if err != nil {
			return f, common.InvalidInput("from: ожидается YYYY-MM-DD")
		}
		f.From = d
	}
	if q.To != "" {
		d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(q.To), loc)
		if err != nil {
			return f, common.InvalidInput("to: ожидается YYYY-MM-DD")
		}
		f.To = d.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, common.InvalidInput("from позже to")
	}
	return f, nil
}

// rangeBounds — [начало, конец) периода; конец — полночь завтрашнего дня.
func rangeBounds(r string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	today := common.StartOfDay(now, loc)
	end := today.AddDate(0, 0, 1)

	switch strings.ToLower(r) {
	case RangeToday:
		return today, end, nil
	case Range7d:
		return today.AddDate(0, 0, -6), end, nil
	case Range30d:
		return today.AddDate(0, 0, -29), end, nil
	case RangeMonth:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc), end, nil
	default:
		return time.Time{}, time.Time{}, common.InvalidInput("range: today, 7d, 30d или month")
	}
}
