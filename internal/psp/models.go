// Package psp — шлюз к платёжному провайдеру PIX (Efí).
//
// Шлюз создаёт платёж и читает его статус. Повторов внутри шлюза нет:
// ошибка провайдера сразу возвращается вызывающему как common.ErrUpstream.
package psp

import "context"

// MinChargeCents — минимальная сумма платежа (R$ 10,00). Бизнес-правило, не настройка.
const MinChargeCents = 1000

// StatusCompleted — единственный статус провайдера, означающий «оплачено».
const StatusCompleted = "CONCLUIDA"

// ChargeRequest — данные для создания платежа.
type ChargeRequest struct {
	PayerName string
	// PayerTaxID — CPF плательщика, только цифры; может быть пустым.
	PayerTaxID  string
	AmountCents int64
}

// Charge — созданный платёж.
type Charge struct {
	// ProviderRef — txid провайдера. Наружу (браузеру) не отдаётся.
	ProviderRef string
	// PaymentCode — строка EMV «copia e cola».
	PaymentCode string
	// QRImage — data URL с PNG QR-кода.
	QRImage string
}

// Status — состояние платежа у провайдера.
type Status struct {
	Status string
	// AmountOriginal — сумма строкой с десятичной точкой, как её вернул провайдер.
	AmountOriginal string
}

// Completed — платёж оплачен.
func (s *Status) Completed() bool {
	return s.Status == StatusCompleted
}

// Gateway — операции провайдера, нужные ядру.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	QueryStatus(ctx context.Context, providerRef string) (*Status, error)
	// Ping проверяет, что учётные данные и mTLS работают (новый обмен токена).
	Ping(ctx context.Context) error
}
