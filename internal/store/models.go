// Package store — долговременное хранилище депозитов (bancas), выплат
// (pagamentos) и записей выписки (extratos).
//
// Переходы между стадиями выполняются одной транзакцией с блокировкой
// исходной строки, поэтому запись с одним id никогда не существует
// одновременно в двух стадиях.
package store

import "time"

// Deposit — ожидающий депозит («banca»).
type Deposit struct {
	ID             string    `json:"id"`
	PayerName      string    `json:"nome"`
	DepositedCents int64     `json:"depositoCents"`
	AdjustedCents  *int64    `json:"bancaCents,omitempty"`
	KeyType        string    `json:"pixType,omitempty"`
	KeyValue       string    `json:"pixKey,omitempty"`
	Message        string    `json:"mensagem,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ResolvedAmount — сумма, которая уйдёт в выплату.
// Исправленная оператором сумма (если задана и не отрицательна) важнее депозита.
func (d *Deposit) ResolvedAmount() int64 {
	if d.AdjustedCents != nil && *d.AdjustedCents >= 0 {
		return *d.AdjustedCents
	}
	return d.DepositedCents
}

// PayoutStatus — статус выплаты.
type PayoutStatus string

const (
	StatusUnpaid PayoutStatus = "unpaid"
	StatusPaid   PayoutStatus = "paid"
)

// Payout — выплата («pagamento»). id совпадает с id исходного депозита.
type Payout struct {
	ID          string       `json:"id"`
	PayerName   string       `json:"nome"`
	AmountCents int64        `json:"pagamentoCents"`
	KeyType     string       `json:"pixType,omitempty"`
	KeyValue    string       `json:"pixKey,omitempty"`
	Message     string       `json:"mensagem,omitempty"`
	Status      PayoutStatus `json:"status"`
	PaidAt      *time.Time   `json:"paidAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// EntryKind — вид записи выписки.
type EntryKind string

const (
	KindDeposit EntryKind = "deposit"
	KindPayout  EntryKind = "payout"
)

// LedgerEntry — неизменяемая запись выписки («extrato»).
type LedgerEntry struct {
	ID          string    `json:"id"`
	RefID       string    `json:"refId"`
	Kind        EntryKind `json:"kind"`
	PayerName   string    `json:"nome"`
	AmountCents int64     `json:"valorCents"`
	// ChargeRef — ссылка провайдера на оплаченный платёж. Клиенту не отдаётся.
	ChargeRef string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// LedgerFilter — условия выборки выписки.
// Нулевые From/To означают «без границы»; To не включается.
type LedgerFilter struct {
	Kind  EntryKind
	Name  string
	From  time.Time
	To    time.Time
	Limit int
}

// Limits выборки выписки.
const (
	DefaultLedgerLimit = 200
	MaxLedgerLimit     = 1000
)

// EffectiveLimit приводит Limit к допустимому диапазону.
func (f LedgerFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLedgerLimit
	case f.Limit > MaxLedgerLimit:
		return MaxLedgerLimit
	default:
		return f.Limit
	}
}

// payoutFromDeposit строит неоплаченную выплату с тем же id и createdAt.
func payoutFromDeposit(d *Deposit, override *int64) *Payout {
	amount := d.ResolvedAmount()
	if override != nil && *override >= 0 {
		amount = *override
	}
	return &Payout{
		ID:          d.ID,
		PayerName:   d.PayerName,
		AmountCents: amount,
		KeyType:     d.KeyType,
		KeyValue:    d.KeyValue,
		Message:     d.Message,
		Status:      StatusUnpaid,
		CreatedAt:   d.CreatedAt,
	}
}

// depositFromPayout — обратный переход: текущая сумма выплаты становится
// и исходной, и исправленной суммой депозита.
func depositFromPayout(p *Payout) *Deposit {
	amount := p.AmountCents
	return &Deposit{
		ID:             p.ID,
		PayerName:      p.PayerName,
		DepositedCents: amount,
		AdjustedCents:  &amount,
		KeyType:        p.KeyType,
		KeyValue:       p.KeyValue,
		Message:        p.Message,
		CreatedAt:      p.CreatedAt,
	}
}
