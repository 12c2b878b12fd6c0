// Package config содержит логику чтения конфигурации магазина.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// CDEK содержит параметры интеграции со СДЭК.
type CDEK struct {
	ClientID      string        `env:"CDEK_CLIENT_ID"`
	ClientSecret  string        `env:"CDEK_CLIENT_SECRET"`
	TestMode      bool          `env:"CDEK_TEST_MODE"`
	BaseURL       string        `env:"CDEK_BASE_URL"`
	Timeout       time.Duration `env:"CDEK_TIMEOUT" envDefault:"10s"`
	SenderCity    string        `env:"CDEK_SENDER_CITY" envDefault:"Москва"`
	SenderAddress string        `env:"CDEK_SENDER_ADDRESS"`
	SenderName    string        `env:"CDEK_SENDER_NAME" envDefault:"RUES VERTES"`
	SenderPhone   string        `env:"CDEK_SENDER_PHONE"`
}

// YooKassa содержит параметры интеграции с ЮКассой.
type YooKassa struct {
	ShopID    string        `env:"YOOKASSA_SHOP_ID"`
	SecretKey string        `env:"YOOKASSA_SECRET_KEY"`
	BaseURL   string        `env:"YOOKASSA_BASE_URL" envDefault:"https://api.yookassa.ru/v3"`
	Timeout   time.Duration `env:"YOOKASSA_TIMEOUT" envDefault:"15s"`
	// WebhookIPs ограничивает приём уведомлений сетями ЮKassa. Отключается только для локальной отладки.
	WebhookIPs bool `env:"WEBHOOK_IP_CHECK" envDefault:"true"`
}

// SMTP содержит параметры отправки уведомлений.
type SMTP struct {
	Host      string `env:"SMTP_HOST"`
	Port      int    `env:"SMTP_PORT" envDefault:"587"`
	User      string `env:"SMTP_USER"`
	Password  string `env:"SMTP_PASSWORD"`
	From      string `env:"SMTP_FROM"`
	ShopEmail string `env:"SHOP_EMAIL"`
}

// Config содержит параметры конфигурации магазина.
type Config struct {
	RunAddress  string   `env:"RUN_ADDRESS"`
	DatabaseURI string   `env:"DATABASE_URI"`
	AuthSecret  string   `env:"AUTH_SECRET"`
	AppURL      string   `env:"APP_URL"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	OutboxInterval      time.Duration `env:"OUTBOX_INTERVAL" envDefault:"2s"`
	PaymentSyncInterval time.Duration `env:"PAYMENT_SYNC_INTERVAL" envDefault:"1m"`

	CDEK     CDEK
	YooKassa YooKassa
	SMTP     SMTP
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAppURL := cfg.AppURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AppURL, "u", "http://localhost:3000", "public storefront URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAppURL != "" {
		cfg.AppURL = envAppURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")

	return cfg, nil
}
