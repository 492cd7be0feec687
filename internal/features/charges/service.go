// Package charges — service.go: создание платежа PIX и опрос его статуса.
package charges

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/psp"
)

var chargesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bancapix_charges_created_total",
	Help: "Попытки создать платёж PIX по результату",
}, []string{"outcome"})

// Service — логика платежей.
type Service struct {
	gateway psp.Gateway
	tokens  Registry
	logger  *log.Entry
}

// NewService создаёт сервис платежей.
func NewService(gateway psp.Gateway, tokens Registry) *Service {
	return &Service{
		gateway: gateway,
		tokens:  tokens,
		logger:  log.WithField("component", "charges"),
	}
}

// Create проверяет ввод, создаёт платёж у провайдера и выдаёт токен.
//
// Сумма ниже минимума отклоняется до обращения к провайдеру.
// CPF необязателен; если указан, должен пройти проверку контрольных цифр.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	name := strings.TrimSpace(req.PayerName)
	if name == "" {
		return nil, common.InvalidInput("payerName обязателен")
	}
	if req.AmountCents == nil || *req.AmountCents <= 0 {
		return nil, common.InvalidInput("amountCents должен быть положительным целым")
	}
	if *req.AmountCents < psp.MinChargeCents {
		chargesCreated.WithLabelValues("below_minimum").Inc()
		return nil, fmt.Errorf("%w: минимум %s", common.ErrBelowMinimum, common.FormatBRL(psp.MinChargeCents))
	}

	taxID := ""
	if strings.TrimSpace(req.PayerTaxID) != "" {
		if !common.IsValidCPF(req.PayerTaxID) {
			return nil, common.InvalidInput("CPF некорректен")
		}
		taxID = common.OnlyDigits(req.PayerTaxID)
	}

	charge, err := s.gateway.CreateCharge(ctx, psp.ChargeRequest{
		PayerName:   name,
		PayerTaxID:  taxID,
		AmountCents: *req.AmountCents,
	})
	if err != nil {
		chargesCreated.WithLabelValues("provider_error").Inc()
		return nil, err
	}

	token, err := s.tokens.Issue(charge.ProviderRef)
	if err != nil {
		return nil, err
	}

	chargesCreated.WithLabelValues("ok").Inc()
	s.logger.WithFields(log.Fields{
		"request_id": common.RequestID(ctx),
		"amount":     *req.AmountCents,
	}).Info("Платёж PIX создан")

	return &CreateResponse{
		Token:       token,
		PaymentCode: charge.PaymentCode,
		QRImage:     charge.QRImage,
	}, nil
}

// Status возвращает статус платежа по токену.
func (s *Service) Status(ctx context.Context, token string) (*StatusResponse, error) {
	ref, err := s.tokens.Resolve(token)
	if err != nil {
		return nil, err
	}
	st, err := s.gateway.QueryStatus(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{Status: st.Status}, nil
}

// SweepExpired чистит истёкшие токены (фоновая задача).
func (s *Service) SweepExpired() {
	if n := s.tokens.Sweep(); n > 0 {
		s.logger.WithField("removed", n).Debug("Истёкшие токены удалены")
	}
}
