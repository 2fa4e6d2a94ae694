package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "FOODRUSH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	LocalDB   LocalDBConfig
	Backend   BackendConfig
	QPay      QPayConfig
	Payment   PaymentConfig
	Checkout  CheckoutConfig
	Redis     RedisConfig
	DevServer DevServerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FOODRUSH_APP_ENV" default:"dev"`
	Port         string `envconfig:"FOODRUSH_APP_PORT" default:"7070"`
	LogLevel     string `envconfig:"FOODRUSH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FOODRUSH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// LocalDBConfig points at the on-device sqlite file backing the guest cart.
type LocalDBConfig struct {
	Path        string `envconfig:"FOODRUSH_LOCAL_DB_PATH" default:"foodrush.db"`
	AutoMigrate bool   `envconfig:"FOODRUSH_LOCAL_DB_AUTO_MIGRATE" default:"true"`
}

type BackendConfig struct {
	BaseURL string        `envconfig:"FOODRUSH_BACKEND_URL" required:"true"`
	Timeout time.Duration `envconfig:"FOODRUSH_BACKEND_TIMEOUT" default:"10s"`
}

type QPayConfig struct {
	BaseURL string        `envconfig:"FOODRUSH_QPAY_URL" required:"true"`
	Timeout time.Duration `envconfig:"FOODRUSH_QPAY_TIMEOUT" default:"10s"`
}

// PaymentConfig tunes the invoice settlement poller. PollInterval is the
// dialog-style cadence; background order views may override per orchestrator.
type PaymentConfig struct {
	PollInterval time.Duration `envconfig:"FOODRUSH_PAYMENT_POLL_INTERVAL" default:"5s"`
	MaxWait      time.Duration `envconfig:"FOODRUSH_PAYMENT_MAX_WAIT" default:"15m"`
}

func (p PaymentConfig) validate() error {
	if p.PollInterval <= 0 {
		return fmt.Errorf("payment poll interval must be positive")
	}
	if p.MaxWait <= 0 {
		return fmt.Errorf("payment max wait must be positive")
	}
	if p.MaxWait < p.PollInterval {
		return fmt.Errorf("payment max wait (%s) must exceed poll interval (%s)", p.MaxWait, p.PollInterval)
	}
	return nil
}

type CheckoutConfig struct {
	DeliveryFee decimal.Decimal `envconfig:"FOODRUSH_DELIVERY_FEE" default:"4990"`
}

// RedisConfig is used by the dev stub backend only; the storefront daemon
// itself keeps all state in the local sqlite file.
type RedisConfig struct {
	URL          string        `envconfig:"FOODRUSH_REDIS_URL"`
	Address      string        `envconfig:"FOODRUSH_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"FOODRUSH_REDIS_PASSWORD"`
	DB           int           `envconfig:"FOODRUSH_REDIS_DB" default:"0"`
	DialTimeout  time.Duration `envconfig:"FOODRUSH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FOODRUSH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FOODRUSH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type DevServerConfig struct {
	Port string `envconfig:"FOODRUSH_DEVSERVER_PORT" default:"8090"`
	// SettleAfterChecks makes the QPay simulator report paid=true once an
	// invoice has been checked this many times.
	SettleAfterChecks int `envconfig:"FOODRUSH_DEVSERVER_SETTLE_AFTER" default:"2"`
}
