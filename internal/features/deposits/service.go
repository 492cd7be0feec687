// Package deposits — service.go: подтверждение оплаты и операции над bancas.
package deposits

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/events"
	"github.com/bancapix/server/internal/features/charges"
	"github.com/bancapix/server/internal/psp"
	"github.com/bancapix/server/internal/store"
)

var confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bancapix_deposit_confirmations_total",
	Help: "Подтверждения депозитов по результату",
}, []string{"outcome"})

// Service — логика депозитов.
type Service struct {
	store   store.Store
	tokens  charges.Registry
	gateway psp.Gateway
	bus     events.Publisher
	now     func() time.Time
	logger  *log.Entry
}

// NewService создаёт сервис депозитов.
func NewService(st store.Store, tokens charges.Registry, gateway psp.Gateway, bus events.Publisher) *Service {
	return &Service{
		store:   st,
		tokens:  tokens,
		gateway: gateway,
		bus:     bus,
		now:     time.Now,
		logger:  log.WithField("component", "deposits"),
	}
}

// Confirm проверяет заявленную оплату у провайдера и записывает депозит.
//
// Порядок:
//  1. ввод (токен, имя, сумма > 0);
//  2. токен → txid провайдера (ErrTokenNotFound);
//  3. статус у провайдера должен быть CONCLUIDA (ErrNotCompleted);
//  4. сумма провайдера должна совпасть с заявленной (ErrAmountMismatch);
//  5. условный отзыв токена: записывает только тот, кто отозвал.
//
// Повтор с тем же токеном получает ErrTokenNotFound, дубля не будет.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (dep *store.Deposit, err error) {
	defer func() { confirmations.WithLabelValues(outcome(err)).Inc() }()

	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, common.InvalidInput("token обязателен")
	}
	in, err := validateDetails(req.PayerName, req.AmountCents, req.KeyType, req.KeyValue, req.Message)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithField("request_id", common.RequestID(ctx))

	ref, err := s.tokens.Resolve(token)
	if err != nil {
		return nil, err
	}

	st, err := s.gateway.QueryStatus(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !st.Completed() {
		return nil, common.ErrNotCompleted
	}

	paid, err := common.ParseDecimalCents(st.AmountOriginal)
	if err != nil {
		logger.WithError(err).Error("Сумма провайдера не распознана")
		return nil, common.ErrUpstreamData
	}
	if paid != in.amount {
		logger.WithFields(log.Fields{
			"claimed": in.amount,
			"paid":    paid,
		}).Warn("Заявленная сумма не совпадает с оплаченной")
		return nil, common.ErrAmountMismatch
	}

	entry, ok := s.tokens.Revoke(token)
	if !ok {
		// Параллельное подтверждение уже забрало токен
		return nil, common.ErrTokenNotFound
	}

	d := &store.Deposit{
		ID:             uuid.NewString(),
		PayerName:      in.name,
		DepositedCents: in.amount,
		KeyType:        in.keyType,
		KeyValue:       in.keyValue,
		Message:        in.message,
		CreatedAt:      s.now(),
	}
	if _, err := s.store.ConfirmDeposit(ctx, d, ref); err != nil {
		if errors.Is(err, common.ErrConflict) {
			// Этот платёж провайдера уже записан (другим экземпляром)
			logger.Warn("Платёж провайдера уже был подтверждён")
			return nil, common.ErrTokenNotFound
		}
		s.tokens.Restore(token, entry)
		logger.WithError(err).Error("Не удалось записать депозит, токен возвращён")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"deposit_id": d.ID,
		"amount":     d.DepositedCents,
	}).Info("Депозит подтверждён")

	change := events.Change{Action: events.ActionConfirmed, ID: d.ID, PayerName: d.PayerName, AmountCents: d.DepositedCents}
	s.bus.Publish(events.DepositsChanged, change)
	s.bus.Publish(events.LedgerChanged, change)
	return d, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, common.ErrNotCompleted):
		return "not_completed"
	case errors.Is(err, common.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, common.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

// Create — ручной ввод депозита оператором. Запись выписки не создаётся:
// выписка документирует только подтверждённые провайдером оплаты.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*store.Deposit, error) {
	in, err := validateDetails(req.PayerName, req.AmountCents, req.KeyType, req.KeyValue, req.Message)
	if err != nil {
		return nil, err
	}
	d := &store.Deposit{
		ID:             uuid.NewString(),
		PayerName:      in.name,
		DepositedCents: in.amount,
		KeyType:        in.keyType,
		KeyValue:       in.keyValue,
		Message:        in.message,
		CreatedAt:      s.now(),
	}
	if err := s.store.InsertDeposit(ctx, d); err != nil {
		return nil, err
	}
	s.bus.Publish(events.DepositsChanged, events.Change{Action: events.ActionCreated, ID: d.ID})
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]store.Deposit, error) {
	return s.store.ListDeposits(ctx)
}

// Adjust задаёт исправленную сумму (>= 0).
func (s *Service) Adjust(ctx context.Context, id string, req AdjustRequest) (*store.Deposit, error) {
	if req.AdjustedAmountCents == nil || *req.AdjustedAmountCents < 0 {
		return nil, common.InvalidInput("adjustedAmountCents должен быть целым >= 0")
	}
	d, err := s.store.SetAdjustedAmount(ctx, id, req.AdjustedAmountCents)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.DepositsChanged, events.Change{Action: events.ActionUpdated, ID: id})
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteDeposit(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(events.DepositsChanged, events.Change{Action: events.ActionDeleted, ID: id})
	return nil
}

// Advance переводит депозит в выплаты (Pending → Payout:Unpaid).
// Отрицательная сумма в запросе игнорируется, как и отрицательная bancaCents.
func (s *Service) Advance(ctx context.Context, id string, req AdvanceRequest) (*store.Payout, error) {
	p, err := s.store.AdvanceDeposit(ctx, id, req.AdjustedAmountCents)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"id":     id,
		"amount": p.AmountCents,
	}).Info("Депозит переведён в выплаты")

	change := events.Change{Action: events.ActionAdvanced, ID: id}
	s.bus.Publish(events.DepositsChanged, change)
	s.bus.Publish(events.PayoutsChanged, change)
	return p, nil
}
