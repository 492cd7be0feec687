package psp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bancapix/server/internal/common"
)

// EfiConfig — параметры подключения к Efí.
type EfiConfig struct {
	ClientID     string
	ClientSecret string
	CertPath     string
	KeyPath      string
	BaseURL      string
	OAuthURL     string
	PixKey       string
	// Expiration — срок жизни платежа у провайдера (calendario.expiracao).
	Expiration time.Duration
	Timeout    time.Duration
}

var providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "bancapix_provider_request_duration_seconds",
	Help:    "Длительность запросов к провайдеру PIX",
	Buckets: prometheus.DefBuckets,
}, []string{"op", "outcome"})

// EfiClient — Gateway поверх API Pix Efí.
// Все запросы (включая обмен токена) идут через mTLS с клиентским сертификатом.
type EfiClient struct {
	cfg    EfiConfig
	oauth  *clientcredentials.Config
	base   *http.Client // mTLS, без авторизации
	api    *http.Client // mTLS + Bearer
	logger *log.Entry
}

var _ Gateway = (*EfiClient)(nil)

// NewEfiClient загружает сертификат и ключ и готовит HTTP-клиентов.
func NewEfiClient(cfg EfiConfig) (*EfiClient, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить сертификат Efí: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return newEfiClient(cfg, &http.Client{Transport: transport, Timeout: cfg.Timeout}), nil
}

// newEfiClient собирает клиента поверх готового базового http.Client.
// Токен кэшируется до истечения (ReuseTokenSource внутри clientcredentials).
func newEfiClient(cfg EfiConfig, base *http.Client) *EfiClient {
	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.OAuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	api := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauthCfg.TokenSource(tokenCtx),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}

	return &EfiClient{
		cfg:    cfg,
		oauth:  oauthCfg,
		base:   base,
		api:    api,
		logger: log.WithField("component", "efi"),
	}
}

// Ping выполняет свежий обмен client_credentials.
func (c *EfiClient) Ping(ctx context.Context) error {
	start := time.Now()
	_, err := c.oauth.Token(context.WithValue(ctx, oauth2.HTTPClient, c.base))
	observe("oauth", start, err)
	if err != nil {
		c.logger.WithField("request_id", common.RequestID(ctx)).
			WithError(err).Error("Ошибка авторизации у провайдера")
		return fmt.Errorf("%w: авторизация", common.ErrUpstream)
	}
	return nil
}

type cobRequest struct {
	Calendario struct {
		Expiracao int `json:"expiracao"`
	} `json:"calendario"`
	Devedor        devedor    `json:"devedor"`
	Valor          valor      `json:"valor"`
	Chave          string     `json:"chave"`
	InfoAdicionais []infoItem `json:"infoAdicionais,omitempty"`
}

type devedor struct {
	CPF  string `json:"cpf,omitempty"`
	Nome string `json:"nome"`
}

type valor struct {
	Original string `json:"original"`
}

type infoItem struct {
	Nome  string `json:"nome"`
	Valor string `json:"valor"`
}

type cobResponse struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
	Loc    struct {
		ID int64 `json:"id"`
	} `json:"loc"`
	Valor valor `json:"valor"`
}

type qrResponse struct {
	QRCode       string `json:"qrcode"`
	ImagemQRCode string `json:"imagemQrcode"`
}

// CreateCharge создаёт немедленный платёж (cob) и получает его QR-код.
func (c *EfiClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.AmountCents < MinChargeCents {
		return nil, fmt.Errorf("%w: %d < %d", common.ErrBelowMinimum, req.AmountCents, MinChargeCents)
	}

	var body cobRequest
	body.Calendario.Expiracao = int(c.cfg.Expiration / time.Second)
	body.Devedor = devedor{CPF: req.PayerTaxID, Nome: req.PayerName}
	body.Valor = valor{Original: common.FormatDecimal(req.AmountCents)}
	body.Chave = c.cfg.PixKey
	body.InfoAdicionais = []infoItem{{Nome: "Nome", Valor: req.PayerName}}

	var cob cobResponse
	if err := c.do(ctx, "create_charge", http.MethodPost, "/v2/cob", body, &cob); err != nil {
		return nil, err
	}
	if cob.TxID == "" || cob.Loc.ID == 0 {
		c.logger.WithField("request_id", common.RequestID(ctx)).
			Error("Провайдер не вернул txid или loc.id")
		return nil, fmt.Errorf("%w: пустой txid", common.ErrUpstreamData)
	}

	var qr qrResponse
	path := fmt.Sprintf("/v2/loc/%d/qrcode", cob.Loc.ID)
	if err := c.do(ctx, "qrcode", http.MethodGet, path, nil, &qr); err != nil {
		return nil, err
	}
	if qr.QRCode == "" {
		return nil, fmt.Errorf("%w: пустой qrcode", common.ErrUpstreamData)
	}

	image := qr.ImagemQRCode
	if image == "" {
		png, err := qrcode.Encode(qr.QRCode, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("%w: генерация QR: %w", common.ErrUpstreamData, err)
		}
		image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	return &Charge{
		ProviderRef: cob.TxID,
		PaymentCode: qr.QRCode,
		QRImage:     image,
	}, nil
}

// QueryStatus читает текущий статус и сумму платежа.
func (c *EfiClient) QueryStatus(ctx context.Context, providerRef string) (*Status, error) {
	var cob cobResponse
	if err := c.do(ctx, "query_status", http.MethodGet, "/v2/cob/"+url.PathEscape(providerRef), nil, &cob); err != nil {
		return nil, err
	}
	if cob.Status == "" {
		return nil, fmt.Errorf("%w: пустой статус", common.ErrUpstreamData)
	}
	return &Status{Status: cob.Status, AmountOriginal: cob.Valor.Original}, nil
}

// do выполняет авторизованный запрос к API и декодирует JSON-ответ.
// Тело ответа с ошибкой пишется в лог, но наружу не уходит.
func (c *EfiClient) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	logger := c.logger.WithFields(log.Fields{
		"op":         op,
		"request_id": common.RequestID(ctx),
	})

	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: кодирование запроса: %w", common.ErrUpstream, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.api.Do(req)
	if err != nil {
		logger.WithError(err).Error("Провайдер недоступен")
		return fmt.Errorf("%w: %s", common.ErrUpstream, op)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		logger.WithError(err).Error("Ошибка чтения ответа провайдера")
		return fmt.Errorf("%w: %s", common.ErrUpstream, op)
	}

	if resp.StatusCode >= 300 {
		logger.WithFields(log.Fields{
			"status": resp.StatusCode,
			"body":   string(raw),
		}).Error("Провайдер ответил ошибкой")
		return fmt.Errorf("%w: %s: HTTP %d", common.ErrUpstream, op, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		logger.WithField("body", string(raw)).WithError(err).Error("Некорректный JSON от провайдера")
		return fmt.Errorf("%w: %s", common.ErrUpstreamData, op)
	}
	return nil
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
