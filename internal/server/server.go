// Package server собирает HTTP-поверхность панели на echo: маршруты,
// промежуточные обработчики, перевод ошибок в ответы и поток событий.
package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/events"
	"github.com/bancapix/server/internal/features/admin"
	"github.com/bancapix/server/internal/features/charges"
	"github.com/bancapix/server/internal/features/deposits"
	"github.com/bancapix/server/internal/features/ledger"
	"github.com/bancapix/server/internal/features/payouts"
	"github.com/bancapix/server/internal/psp"
	mw "github.com/bancapix/server/internal/server/middleware"
	"github.com/bancapix/server/internal/store"
)

const healthTimeout = 3 * time.Second

// Options — настройки HTTP-слоя.
type Options struct {
	CORSOrigin    string
	BodyLimit     string
	AppKey        string
	SecureCookies bool
	// CertFiles проверяются в /health (сертификат и ключ mTLS провайдера).
	CertFiles []string
	// TrustedProxies — сети прокси, чьему X-Forwarded-For верим.
	// Пусто — адрес клиента берётся только из соединения.
	TrustedProxies []*net.IPNet
}

// Deps — сервисы, которые обслуживает сервер.
type Deps struct {
	Store    store.Store
	Gateway  psp.Gateway
	Bus      *events.Bus
	Admin    *admin.Service
	Charges  *charges.Service
	Deposits *deposits.Service
	Payouts  *payouts.Service
	Ledger   *ledger.Service
}

// Server — echo с маршрутами панели.
type Server struct {
	*echo.Echo
	opts    Options
	store   store.Store
	gateway psp.Gateway
	bus     *events.Bus
	logger  *log.Entry
}

// New создаёт сервер и регистрирует все маршруты.
func New(opts Options, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(glog.ERROR)
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = handleError
	e.IPExtractor = ipExtractor(opts.TrustedProxies)

	s := &Server{
		Echo:    e,
		opts:    opts,
		store:   d.Store,
		gateway: d.Gateway,
		bus:     d.Bus,
		logger:  log.WithField("component", "server"),
	}

	e.Use(middleware.RequestID())
	e.Use(mw.RequestContext())
	e.Use(mw.AccessLog())
	e.Use(requestMetrics())
	e.Use(mw.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{opts.CORSOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, admin.CSRFHeader, admin.AppKeyHeader},
		AllowCredentials: true,
	}))
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	e.GET("/health", s.health)
	e.GET("/metrics", metricsHandler())

	area := e.Group("", admin.RequireSession(d.Admin), admin.RequireCSRF())
	area.GET("/health/provider", s.providerHealth)
	area.GET("/events", s.streamEvents)

	appKey := admin.RequireAppKey(opts.AppKey)
	admin.NewHandler(d.Admin, opts.SecureCookies).Register(e, area)
	charges.NewHandler(d.Charges).Register(e)
	deposits.NewHandler(d.Deposits).Register(e, appKey, area)
	payouts.NewHandler(d.Payouts).Register(area)
	ledger.NewHandler(d.Ledger).Register(area)

	return s
}

// HealthResponse — ответ /health.
type HealthResponse struct {
	OK   bool `json:"ok"`
	DB   bool `json:"db"`
	Cert bool `json:"cert"`
}

// health — GET /health: база отвечает и файлы mTLS на месте.
func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	res := HealthResponse{DB: true, Cert: true}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Проверка базы не прошла")
		res.DB = false
	}
	for _, path := range s.opts.CertFiles {
		if _, err := os.Stat(path); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Файл сертификата недоступен")
			res.Cert = false
		}
	}
	res.OK = res.DB && res.Cert

	status := http.StatusOK
	if !res.OK {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, res)
}

// providerHealth — GET /health/provider: обмен учётных данных у провайдера.
func (s *Server) providerHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := s.gateway.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Провайдер PIX недоступен")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "provider_error"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// ipExtractor определяет адрес клиента для лимита входа и журнала попыток.
// Заголовки X-Forwarded-For / X-Real-IP учитываются только от доверенных прокси.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
