package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings for the vaultgate API process.
type Config struct {
	Addr            string        `env:"VAULTGATE_ADDR"             envDefault:":8080"`
	PostgresDSN     string        `env:"VAULTGATE_PG_DSN"`
	AuthSecret      string        `env:"VAULTGATE_AUTH_SECRET"`
	RequestTTL      time.Duration `env:"VAULTGATE_AUTH_REQUEST_TTL" envDefault:"15m"`
	RateLimitBurst  int           `env:"VAULTGATE_RATE_BURST"       envDefault:"20"`
	RateLimitPerSec int           `env:"VAULTGATE_RATE_PER_SEC"     envDefault:"10"`
	MaxBodyBytes    int64         `env:"VAULTGATE_MAX_BODY_BYTES"   envDefault:"1048576"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.RequestTTL <= 0 {
		return Config{}, fmt.Errorf("auth request ttl must be positive, got %s", cfg.RequestTTL)
	}
	return cfg, nil
}
