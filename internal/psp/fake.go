package psp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bancapix/server/internal/common"
)

// Fake — провайдер в памяти для тестов и локального запуска.
// Новый платёж создаётся в статусе ATIVA; тест переводит его через Pay/SetStatus.
type Fake struct {
	mu      sync.Mutex
	charges map[string]*Status
	seq     int
	// Err, если задан, возвращается из всех вызовов.
	Err error

	CreateCalls atomic.Int64
	QueryCalls  atomic.Int64
}

var _ Gateway = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{charges: make(map[string]*Status)}
}

func (f *Fake) CreateCharge(_ context.Context, req ChargeRequest) (*Charge, error) {
	if req.AmountCents < MinChargeCents {
		return nil, fmt.Errorf("%w: %d < %d", common.ErrBelowMinimum, req.AmountCents, MinChargeCents)
	}
	f.CreateCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.seq++
	ref := fmt.Sprintf("faketx%026d", f.seq)
	f.charges[ref] = &Status{
		Status:         "ATIVA",
		AmountOriginal: common.FormatDecimal(req.AmountCents),
	}
	return &Charge{
		ProviderRef: ref,
		PaymentCode: fmt.Sprintf("00020101021226%04dBR.GOV.BCB.PIX", f.seq),
		QRImage:     "data:image/png;base64,ZmFrZQ==",
	}, nil
}

func (f *Fake) QueryStatus(_ context.Context, providerRef string) (*Status, error) {
	f.QueryCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	st, ok := f.charges[providerRef]
	if !ok {
		return nil, fmt.Errorf("%w: HTTP 404", common.ErrUpstream)
	}
	cp := *st
	return &cp, nil
}

func (f *Fake) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Err
}

// Pay помечает платёж оплаченным.
func (f *Fake) Pay(providerRef string) {
	f.SetStatus(providerRef, StatusCompleted, "")
}

// SetStatus задаёт статус и (если amount не пуст) сумму платежа.
func (f *Fake) SetStatus(providerRef, status, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.charges[providerRef]
	if !ok {
		st = &Status{}
		f.charges[providerRef] = st
	}
	st.Status = status
	if amount != "" {
		st.AmountOriginal = amount
	}
}

// Refs — все созданные ссылки провайдера.
func (f *Fake) Refs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]string, 0, len(f.charges))
	for ref := range f.charges {
		refs = append(refs, ref)
	}
	return refs
}
