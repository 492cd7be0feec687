package payouts

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/events"
	"github.com/bancapix/server/internal/store"
)

// Service — логика выплат.
type Service struct {
	store    store.Store
	archiver *Archiver
	bus      events.Publisher
	now      func() time.Time
	logger   *log.Entry
}

// NewService создаёт сервис выплат.
func NewService(st store.Store, archiver *Archiver, bus events.Publisher) *Service {
	return &Service{
		store:    st,
		archiver: archiver,
		bus:      bus,
		now:      time.Now,
		logger:   log.WithField("component", "payouts"),
	}
}

// List возвращает выплаты, попутно убирая просроченные оплаченные.
func (s *Service) List(ctx context.Context) ([]store.Payout, error) {
	if _, err := s.archiver.Sweep(ctx); err != nil {
		s.logger.WithError(err).Warn("Ленивая архивация не удалась")
	}
	return s.store.ListPayouts(ctx)
}

// SetStatus отмечает выплату оплаченной или неоплаченной.
//
// Запись выписки появляется только на переходе unpaid→paid; повторное
// "paid" ничего не меняет. Снятие оплаты запись выписки не удаляет.
func (s *Service) SetStatus(ctx context.Context, id string, req SetStatusRequest) (*store.Payout, error) {
	status, err := parseStatus(req.Status)
	if err != nil {
		return nil, err
	}

	p, entry, err := s.store.SetPayoutStatus(ctx, id, status, s.now())
	if err != nil {
		return nil, err
	}

	change := events.Change{ID: id, PayerName: p.PayerName, AmountCents: p.AmountCents}
	switch p.Status {
	case store.StatusPaid:
		// Повторное "paid" — не новая оплата
		change.Action = events.ActionUpdated
		if entry != nil {
			change.Action = events.ActionPaid
			if p.PaidAt != nil {
				s.archiver.Schedule(id, *p.PaidAt)
			}
		}
	default:
		change.Action = events.ActionUnpaid
		s.archiver.Cancel(id)
	}

	s.logger.WithFields(log.Fields{
		"id":     id,
		"status": p.Status,
	}).Info("Статус выплаты изменён")

	s.bus.Publish(events.PayoutsChanged, change)
	if entry != nil {
		s.bus.Publish(events.LedgerChanged, change)
	}
	return p, nil
}

// Revert возвращает выплату в депозиты.
func (s *Service) Revert(ctx context.Context, id string) (*store.Deposit, error) {
	d, err := s.store.RevertPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	s.archiver.Cancel(id)

	s.logger.WithField("id", id).Info("Выплата возвращена в депозиты")

	change := events.Change{Action: events.ActionReverted, ID: id}
	s.bus.Publish(events.PayoutsChanged, change)
	s.bus.Publish(events.DepositsChanged, change)
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return common.InvalidInput("id обязателен")
	}
	if err := s.store.DeletePayout(ctx, id); err != nil {
		return err
	}
	s.archiver.Cancel(id)
	s.bus.Publish(events.PayoutsChanged, events.Change{Action: events.ActionDeleted, ID: id})
	return nil
}
