package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Issuer string `env:"IDENTITY_ISSUER" envDefault:"brightlake-identity"`

	AccountDBFile string `env:"IDENTITY_ACCOUNT_DB_FILE" envDefault:"identity.db"`
	ProfileDBFile string `env:"IDENTITY_PROFILE_DB_FILE" envDefault:"profile.db"`
	PepperFile    string `env:"IDENTITY_PEPPER_FILE" envDefault:"pepper"`

	AccessTTL  time.Duration `env:"IDENTITY_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"IDENTITY_REFRESH_TTL" envDefault:"168h"`
	CodeTTL    time.Duration `env:"IDENTITY_CODE_TTL" envDefault:"24h"`

	HousekeepingInterval time.Duration `env:"IDENTITY_HOUSEKEEPING_INTERVAL" envDefault:"1h"`
	ShutdownGracePeriod  time.Duration `env:"IDENTITY_SHUTDOWN_GRACE" envDefault:"10s"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
