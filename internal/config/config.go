// Package config загружает конфигурацию сервера из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- HTTP ---
	HTTPAddr   string `envconfig:"HTTP_ADDR" default:":8080"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:8080"`
	BodyLimit  string `envconfig:"HTTP_BODY_LIMIT" default:"64K"`
	// CIDR прокси через запятую; без них X-Forwarded-For игнорируется
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	// --- Database ---
	// DATABASE_URL имеет приоритет над DB_* (так удобнее на Render/Heroku).
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"postgres"`
	DBPort      int    `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"bancapix"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME" default:"bancapix"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	// Сколько ждём базу при старте (docker-compose поднимает её параллельно)
	DBConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"30s"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"America/Sao_Paulo"`

	// --- Admin / sessions ---
	AdminUser         string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`
	SessionSecret     string `envconfig:"SESSION_SECRET" required:"true"`
	// Общий секрет публичной ручки подтверждения (заголовок X-APP-KEY)
	AppKey string `envconfig:"APP_KEY" required:"true"`

	// --- Login rate limiting ---
	LoginRateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"20"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"10m"`

	// --- Efí (PSP) ---
	EfiClientID         string        `envconfig:"EFI_CLIENT_ID" required:"true"`
	EfiClientSecret     string        `envconfig:"EFI_CLIENT_SECRET" required:"true"`
	EfiCertPath         string        `envconfig:"EFI_CERT_PATH" required:"true"`
	EfiKeyPath          string        `envconfig:"EFI_KEY_PATH" required:"true"`
	EfiBaseURL          string        `envconfig:"EFI_BASE_URL" default:"https://pix-h.api.efipay.com.br"`
	EfiOAuthURL         string        `envconfig:"EFI_OAUTH_URL" default:"https://pix-h.api.efipay.com.br/oauth/token"`
	EfiPixKey           string        `envconfig:"EFI_PIX_KEY" required:"true"`
	EfiChargeExpiration time.Duration `envconfig:"EFI_CHARGE_EXPIRATION" default:"1h"`
	EfiTimeout          time.Duration `envconfig:"EFI_TIMEOUT" default:"15s"`

	// --- Telegram (необязательно) ---
	// Если задан токен — оператор получает уведомления о депозитах и выплатах.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword),
		c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsProduction — включает Secure-куки.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// TelegramEnabled — заданы ли обе переменные Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// TrustedProxyNets разбирает TRUSTED_PROXIES; одиночный адрес считается /32 (/128).
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: некорректный адрес %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: некорректная сеть %q", raw)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func (c *Config) Validate() error {
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET должен быть не короче 32 символов")
	}
	if c.AppKey == "" {
		return fmt.Errorf("APP_KEY не задан")
	}
	if c.DatabaseURL == "" && c.DBPassword == "" {
		return fmt.Errorf("нужен DATABASE_URL или DB_PASSWORD")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.LoginRateLimit <= 0 || c.LoginRateWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT и LOGIN_RATE_WINDOW должны быть > 0")
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	if c.EfiChargeExpiration < time.Minute {
		return fmt.Errorf("EFI_CHARGE_EXPIRATION должен быть не меньше 1m")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == 0) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN и TELEGRAM_CHAT_ID задаются только вместе")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
