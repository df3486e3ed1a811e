package query

import (
	"fmt"
	"time"

	"github.com/jonwraymond/querysync/observe"
	"github.com/jonwraymond/querysync/policy"
	"github.com/jonwraymond/querysync/resilience"
)

// Config configures a Client.
type Config struct {
	// Policies resolves per-resource staleness policies. Resources named
	// by Table must be registered here.
	// Default: a registry falling back to policy.Default()
	Policies *policy.Registry

	// Table maps mutation kinds to the key prefixes they invalidate.
	Table Table

	// Retry configures fetch retries. Zero fields take the resilience
	// defaults (3 attempts, 300ms base, factor 2, 5s cap).
	Retry resilience.RetryConfig

	// AttemptTimeout bounds a single fetch attempt.
	// Default: 30 seconds
	AttemptTimeout time.Duration

	// SweepInterval is the period of the maintenance loop run by Run.
	// Default: 30 seconds
	SweepInterval time.Duration

	// PrefetchConcurrency limits concurrent fetches started by Prefetch.
	// Default: 4
	PrefetchConcurrency int

	// Middleware instruments fetches and mutations.
	// Default: observe.NopMiddleware()
	Middleware *observe.Middleware

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

// Validate checks the configuration. It does not apply defaults.
func (c Config) Validate() error {
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("%w: negative attempt timeout", ErrInvalidConfig)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("%w: negative sweep interval", ErrInvalidConfig)
	}
	if c.PrefetchConcurrency < 0 {
		return fmt.Errorf("%w: negative prefetch concurrency", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative retry attempts", ErrInvalidConfig)
	}
	if c.Table != nil {
		reg := c.Policies
		if reg == nil {
			reg = policy.NewRegistry(policy.Default())
		}
		if err := c.Table.Validate(reg); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Policies == nil {
		c.Policies = policy.NewRegistry(policy.Default())
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = resilience.DefaultAttemptTimeout
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.PrefetchConcurrency == 0 {
		c.PrefetchConcurrency = 4
	}
	if c.Middleware == nil {
		c.Middleware = observe.NopMiddleware()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
