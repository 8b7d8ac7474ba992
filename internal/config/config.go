// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/layer-3/kusaidia/core"
)

// Config is the full server and client configuration.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":9000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	APIBaseURL  string `env:"API_BASE_URL" envDefault:"http://localhost:9000"`
	NotifyWSURL string `env:"NOTIFY_WS_URL" envDefault:"ws://localhost:9000/ws/notifications/"`

	// Empty RedisURL selects in-memory nonce and revocation stores and an in-process event bus.
	RedisURL string `env:"REDIS_URL"`
	// Empty DatabaseURL selects in-memory account and notification stores.
	DatabaseURL string `env:"DATABASE_URL"`
	// Empty key file makes serve generate an ephemeral signing key.
	SigningKeyFile string `env:"JWT_SIGNING_KEY_FILE"`

	NonceTTL   time.Duration `env:"NONCE_TTL" envDefault:"5m"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"5m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"120h"`

	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"donor"`

	Reconnect Reconnect

	NonceSweepInterval time.Duration `env:"NONCE_SWEEP_INTERVAL" envDefault:"1m"`

	NotificationTopic string `env:"NOTIFICATION_TOPIC" envDefault:"kusaidia.notifications"`
	SessionTopic      string `env:"SESSION_TOPIC" envDefault:"kusaidia.sessions"`
}

// Reconnect holds the notification hub's backoff and polling parameters.
type Reconnect struct {
	BaseDelay    time.Duration `env:"RECONNECT_BASE_DELAY" envDefault:"1s"`
	MaxDelay     time.Duration `env:"RECONNECT_MAX_DELAY" envDefault:"30s"`
	MaxAttempts  int           `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"5"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
}

// Load reads an optional .env file and then parses the environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Role returns the configured default role for new accounts.
func (c *Config) Role() core.Role {
	role, err := core.ParseRole(c.DefaultRole)
	if err != nil {
		return core.RoleDonor
	}
	return role
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := core.ParseRole(c.DefaultRole); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_ROLE: %w", err))
	}
	positive := map[string]time.Duration{
		"NONCE_TTL":            c.NonceTTL,
		"ACCESS_TTL":           c.AccessTTL,
		"REFRESH_TTL":          c.RefreshTTL,
		"RECONNECT_BASE_DELAY": c.Reconnect.BaseDelay,
		"RECONNECT_MAX_DELAY":  c.Reconnect.MaxDelay,
		"POLL_INTERVAL":        c.Reconnect.PollInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("ACCESS_TTL must be shorter than REFRESH_TTL"))
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		errs = append(errs, errors.New("RECONNECT_MAX_DELAY must not be below RECONNECT_BASE_DELAY"))
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("RECONNECT_MAX_ATTEMPTS must not be negative"))
	}
	if c.NonceSweepInterval < 0 {
		errs = append(errs, errors.New("NONCE_SWEEP_INTERVAL must not be negative"))
	}
	return errors.Join(errs...)
}
