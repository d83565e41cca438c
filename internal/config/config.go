package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	BybitMainnetURL = "https://api.bybit.com"
	BybitTestnetURL = "https://api-testnet.bybit.com"
	BybitDemoURL    = "https://api-demo.bybit.com"
)

type Config struct {
	// Доступ к Bybit
	Bybit struct {
		APIKey     string        `envconfig:"BYBIT_API_KEY" required:"true"`
		APISecret  string        `envconfig:"BYBIT_API_SECRET" required:"true"`
		Testnet    bool          `envconfig:"TESTNET" default:"true"`
		Demo       bool          `envconfig:"DEMO" default:"false"`
		BaseURL    string        `envconfig:"BYBIT_BASE_URL"`
		Category   string        `envconfig:"BYBIT_CATEGORY" default:"linear"`
		RecvWindow int           `envconfig:"BYBIT_RECV_WINDOW" default:"5000"`
		Timeout    time.Duration `envconfig:"BYBIT_TIMEOUT" default:"30s"`
		RetryCount int           `envconfig:"BYBIT_RETRY_COUNT" default:"2"`
		ProxyAddr  string        `envconfig:"PROXY_ADDR"`
	}

	// HTTP сервер
	Server struct {
		Addr            string        `envconfig:"HTTP_ADDR" default:":8000"`
		ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
		CORSOrigins     []string      `envconfig:"CORS_ORIGINS"`
		RateLimit       int           `envconfig:"RATE_LIMIT" default:"100"`
		RateWindow      time.Duration `envconfig:"RATE_WINDOW" default:"1m"`
		// Доверять X-Forwarded-For / X-Real-IP только за своим reverse proxy
		TrustProxy      bool          `envconfig:"TRUST_PROXY" default:"false"`
	}

	// Аутентификация входящих запросов
	Auth struct {
		WebhookPassphrase string `envconfig:"WEBHOOK_PASSPHRASE"`
		JWTSecret         string `envconfig:"API_JWT_SECRET"`
		MetricsUser       string `envconfig:"METRICS_USER"`
		MetricsPassword   string `envconfig:"METRICS_PASSWORD"`
	}

	Log struct {
		Level      string `envconfig:"LOG_LEVEL" default:"info"`
		File       string `envconfig:"LOG_FILE"`
		MaxSize    int    `envconfig:"LOG_MAX_SIZE" default:"100"`
		MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
		MaxAge     int    `envconfig:"LOG_MAX_AGE" default:"30"`
		Compress   bool   `envconfig:"LOG_COMPRESS" default:"false"`
	}
}

// Load читает .env (если он есть) и переменные окружения
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Warning: .env file not found")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// Validate проверяет диапазоны значений
func (c *Config) Validate() error {
	if c.Bybit.APIKey == "" || c.Bybit.APISecret == "" {
		return errors.New("BYBIT_API_KEY and BYBIT_API_SECRET must be set in environment variables")
	}
	if c.Bybit.Category != "linear" && c.Bybit.Category != "inverse" {
		return errors.Errorf("BYBIT_CATEGORY must be linear or inverse, got %q", c.Bybit.Category)
	}
	if c.Bybit.RecvWindow <= 0 {
		return errors.New("BYBIT_RECV_WINDOW must be positive")
	}
	if c.Bybit.Timeout <= 0 {
		return errors.New("BYBIT_TIMEOUT must be positive")
	}
	if c.Bybit.RetryCount < 0 {
		return errors.New("BYBIT_RETRY_COUNT must not be negative")
	}
	if c.Server.RateLimit <= 0 || c.Server.RateWindow <= 0 {
		return errors.New("RATE_LIMIT and RATE_WINDOW must be positive")
	}
	if (c.Auth.MetricsUser == "") != (c.Auth.MetricsPassword == "") {
		return errors.New("METRICS_USER and METRICS_PASSWORD must be set together")
	}
	return nil
}

// BaseURL возвращает адрес REST API. Demo имеет приоритет над testnet.
func (c *Config) BaseURL() string {
	switch {
	case c.Bybit.BaseURL != "":
		return c.Bybit.BaseURL
	case c.Bybit.Demo:
		return BybitDemoURL
	case c.Bybit.Testnet:
		return BybitTestnetURL
	default:
		return BybitMainnetURL
	}
}
