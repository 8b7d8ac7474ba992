package hub

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds the reconnect and polling parameters of a hub.
type Config struct {
	// BaseDelay is the wait before the first reconnect attempt. Each further attempt doubles it.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. A connection that stays open this long
	// resets the schedule; shorter-lived ones keep counting attempts.
	MaxDelay time.Duration
	// MaxAttempts is how many reconnects are tried before falling back to polling.
	MaxAttempts int
	// PollInterval is the period of the polling fallback.
	PollInterval time.Duration
	// MaxItems bounds the notifications kept in memory, newest first.
	MaxItems int
}

// DefaultConfig returns 1s doubling to 30s, 5 attempts, then a 30s poll.
// It keeps the newest 100 notifications.
func DefaultConfig() Config {
	return Config{
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  5,
		PollInterval: 30 * time.Second,
		MaxItems:     100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = max(def.MaxDelay, c.BaseDelay)
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxItems <= 0 {
		c.MaxItems = def.MaxItems
	}
	return c
}

// newBackOff yields BaseDelay, 2*BaseDelay, ... capped at MaxDelay and returns
// backoff.Stop once MaxAttempts waits have been handed out.
func newBackOff(cfg Config) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.BaseDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	b := backoff.WithMaxRetries(exp, uint64(cfg.MaxAttempts))
	b.Reset()
	return b
}
