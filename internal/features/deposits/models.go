// Package deposits — models.go: запросы ручек депозитов и проверка ввода.
package deposits

import (
	"strings"
	"unicode/utf8"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/store"
)

const (
	maxNameLen    = 120
	maxKeyLen     = 140
	maxMessageLen = 500
)

// ConfirmRequest — тело POST /deposits/confirm.
type ConfirmRequest struct {
	Token       string `json:"token"`
	PayerName   string `json:"payerName"`
	AmountCents *int64 `json:"amountCents"`
	KeyType     string `json:"keyType"`
	KeyValue    string `json:"keyValue"`
	Message     string `json:"message"`
}

// ConfirmResponse — {ok:true, ...депозит}.
type ConfirmResponse struct {
	OK bool `json:"ok"`
	*store.Deposit
}

// CreateRequest — тело POST /deposits (ручной ввод оператором).
type CreateRequest struct {
	PayerName   string `json:"payerName"`
	AmountCents *int64 `json:"amountCents"`
	KeyType     string `json:"keyType"`
	KeyValue    string `json:"keyValue"`
	Message     string `json:"message"`
}

// AdjustRequest — тело PATCH /deposits/:id.
type AdjustRequest struct {
	AdjustedAmountCents *int64 `json:"adjustedAmountCents"`
}

// AdvanceRequest — тело POST /deposits/:id/advance (необязательное).
type AdvanceRequest struct {
	AdjustedAmountCents *int64 `json:"adjustedAmountCents"`
}

// OKResponse — {ok:true}.
type OKResponse struct {
	OK bool `json:"ok"`
}

// details — общие поля депозита после проверки.
type details struct {
	name     string
	amount   int64
	keyType  string
	keyValue string
	message  string
}

func validateDetails(name string, amount *int64, keyType, keyValue, message string) (*details, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.InvalidInput("payerName обязателен")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, common.InvalidInput("payerName длиннее %d символов", maxNameLen)
	}
	if amount == nil || *amount <= 0 {
		return nil, common.InvalidInput("amountCents должен быть положительным целым")
	}

	kt, ok := common.NormalizeKeyType(keyType)
	if !ok {
		return nil, common.InvalidInput("неизвестный keyType %q", keyType)
	}
	kv := strings.TrimSpace(keyValue)
	if utf8.RuneCountInString(kv) > maxKeyLen {
		return nil, common.InvalidInput("keyValue слишком длинный")
	}
	if kt == "" && kv != "" {
		return nil, common.InvalidInput("keyValue без keyType")
	}
	if kt == common.KeyTypeCPF && kv != "" {
		if !common.IsValidCPF(kv) {
			return nil, common.InvalidInput("CPF некорректен")
		}
		kv = common.OnlyDigits(kv)
	}

	msg := strings.TrimSpace(message)
	if utf8.RuneCountInString(msg) > maxMessageLen {
		return nil, common.InvalidInput("message длиннее %d символов", maxMessageLen)
	}

	return &details{name: name, amount: *amount, keyType: kt, keyValue: kv, message: msg}, nil
}
