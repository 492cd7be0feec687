// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, хранилище, клиента провайдера,
// сервисы и HTTP-сервер и собирает всё в один объект App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/config"
	"github.com/bancapix/server/internal/db/postgres"
	"github.com/bancapix/server/internal/events"
	"github.com/bancapix/server/internal/features/admin"
	"github.com/bancapix/server/internal/features/charges"
	"github.com/bancapix/server/internal/features/deposits"
	"github.com/bancapix/server/internal/features/ledger"
	"github.com/bancapix/server/internal/features/payouts"
	"github.com/bancapix/server/internal/jobs"
	"github.com/bancapix/server/internal/notify"
	"github.com/bancapix/server/internal/psp"
	"github.com/bancapix/server/internal/server"
	mw "github.com/bancapix/server/internal/server/middleware"
	"github.com/bancapix/server/internal/store"
)

const (
	busBuffer       = 64
	shutdownTimeout = 10 * time.Second
)

// App содержит все компоненты приложения.
type App struct {
	Server    *server.Server
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	Bus       *events.Bus
	Archiver  *payouts.Archiver
	Telegram  *notify.Telegram

	cfg     *config.Config
	limiter *mw.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loc := common.LoadLocation(cfg.AppTimezone)

	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := postgres.Migrate(ctx, pool, store.Migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	st := store.NewPostgres(pool)

	// === 2. Провайдер PIX ===
	gateway, err := psp.NewEfiClient(psp.EfiConfig{
		ClientID:     cfg.EfiClientID,
		ClientSecret: cfg.EfiClientSecret,
		CertPath:     cfg.EfiCertPath,
		KeyPath:      cfg.EfiKeyPath,
		BaseURL:      cfg.EfiBaseURL,
		OAuthURL:     cfg.EfiOAuthURL,
		PixKey:       cfg.EfiPixKey,
		Expiration:   cfg.EfiChargeExpiration,
		Timeout:      cfg.EfiTimeout,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	// === 3. Шина и реестр токенов ===
	bus := events.NewBus(busBuffer)
	tokens := charges.NewMemoryRegistry()

	// === 4. Сервисы ===
	limiter := mw.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	adminService := admin.NewService(admin.Credentials{
		User:         cfg.AdminUser,
		PasswordHash: cfg.AdminPasswordHash,
		MaxFailures:  cfg.LoginRateLimit,
		Window:       cfg.LoginRateWindow,
	}, admin.NewSessions(cfg.SessionSecret), limiter, admin.NewRepository(pool))

	chargeService := charges.NewService(gateway, tokens)
	depositService := deposits.NewService(st, tokens, gateway, bus)
	archiver := payouts.NewArchiver(st, bus)
	payoutService := payouts.NewService(st, archiver, bus)
	ledgerService := ledger.NewService(st, loc)

	// Таймеры архивации живут в памяти — восстанавливаем их после рестарта
	if n, err := archiver.Recover(ctx); err != nil {
		log.WithError(err).Warn("Не удалось восстановить таймеры архивации")
	} else if n > 0 {
		log.Infof("Восстановлено таймеров архивации: %d", n)
	}

	// === 5. HTTP-сервер ===
	proxies, err := cfg.TrustedProxyNets()
	if err != nil {
		pool.Close()
		return nil, err
	}
	srv := server.New(server.Options{
		CORSOrigin:     cfg.CORSOrigin,
		BodyLimit:      cfg.BodyLimit,
		AppKey:         cfg.AppKey,
		SecureCookies:  cfg.IsProduction(),
		CertFiles:      []string{cfg.EfiCertPath, cfg.EfiKeyPath},
		TrustedProxies: proxies,
	}, server.Deps{
		Store:    st,
		Gateway:  gateway,
		Bus:      bus,
		Admin:    adminService,
		Charges:  chargeService,
		Deposits: depositService,
		Payouts:  payoutService,
		Ledger:   ledgerService,
	})

	// === 6. Планировщик задач ===
	scheduler := jobs.NewScheduler(loc, chargeService, archiver)

	// === 7. Telegram (необязательно) ===
	var telegram *notify.Telegram
	if cfg.TelegramEnabled() {
		telegram, err = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.WithError(err).Warn("Уведомления в Telegram отключены")
			telegram = nil
		}
	}

	return &App{
		Server:    srv,
		Scheduler: scheduler,
		DB:        pool,
		Bus:       bus,
		Archiver:  archiver,
		Telegram:  telegram,
		cfg:       cfg,
		limiter:   limiter,
	}, nil
}

// Run запускает фоновые задачи и HTTP-сервер; блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска планировщика: %w", err)
	}
	go a.Bus.RunHeartbeat(ctx, events.HeartbeatInterval)
	if a.Telegram != nil {
		go a.Telegram.Run(ctx, a.Bus)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP-сервер слушает %s", a.cfg.HTTPAddr)
		if err := a.Server.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("HTTP-сервер остановился: %w", err)
	}
}

// Close останавливает компоненты в обратном порядке.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP-сервер остановлен некорректно")
	}
	a.Scheduler.Stop()
	a.Archiver.Stop()
	a.Bus.Close()
	a.limiter.Close()
	a.DB.Close()
}
