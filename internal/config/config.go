package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Server
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"chorestars.db"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Scheduling
	Timezone      string        `env:"TIMEZONE" envDefault:"Local"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`

	// Engine
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"10s"`
	ReadRetries      uint64        `env:"READ_RETRIES" envDefault:"3"`

	// Web push
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `env:"VAPID_SUBSCRIBER"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

const prefix = "CHORESTARS_"

// Load reads configuration from CHORESTARS_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("parse config: %sSWEEP_INTERVAL must be positive", prefix)
	}
	if cfg.OperationTimeout <= 0 {
		return nil, fmt.Errorf("parse config: %sOPERATION_TIMEOUT must be positive", prefix)
	}
	return cfg, nil
}

// Location resolves Timezone. Day boundaries for recurring tasks are
// computed in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
