// Package payouts — выплаты (pagamentos): статус, возврат в депозиты,
// удаление и автоматическая архивация оплаченных.
package payouts

import (
	"strings"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/store"
)

// SetStatusRequest — тело PATCH /payouts/:id.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// OKResponse — {ok:true}.
type OKResponse struct {
	OK bool `json:"ok"`
}

// parseStatus принимает и старые написания панели ("pago", "nao_pago").
func parseStatus(s string) (store.PayoutStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "pago":
		return store.StatusPaid, nil
	case "unpaid", "nao_pago", "não_pago", "nao pago":
		return store.StatusUnpaid, nil
	default:
		return "", common.InvalidInput("status должен быть paid или unpaid")
	}
}
