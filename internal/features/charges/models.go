// Package charges — models.go: запросы и ответы ручек платежей.
package charges

// CreateRequest — тело POST /charges.
type CreateRequest struct {
	PayerName   string `json:"payerName"`
	PayerTaxID  string `json:"payerTaxId"`
	AmountCents *int64 `json:"amountCents"`
}

// CreateResponse — ответ POST /charges. txid провайдера сюда не попадает.
type CreateResponse struct {
	Token       string `json:"token"`
	PaymentCode string `json:"paymentCode"`
	QRImage     string `json:"qrImage"`
}

// StatusResponse — ответ GET /charges/:token/status.
type StatusResponse struct {
	Status string `json:"status"`
}
