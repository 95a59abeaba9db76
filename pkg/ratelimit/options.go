package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// DefaultSlack is the number of intervals of idle credit a limiter keeps
// unless told otherwise.
const DefaultSlack = 10

type config struct {
	per   time.Duration
	slack int
	clock Clock
}

func defaultConfig() config {
	return config{
		per:   time.Second,
		slack: DefaultSlack,
		clock: SystemClock(),
	}
}

// Option configures a limiter at construction time.
type Option func(*config) error

// Per sets the period the rate is expressed over. The default is one second,
// so New(60, Per(time.Minute)) allows one take per second.
func Per(per time.Duration) Option {
	return func(c *config) error {
		if per <= 0 {
			return fmt.Errorf("%w: period must be > 0, got %v", ErrInvalidConfiguration, per)
		}
		c.per = per
		return nil
	}
}

// WithSlack sets how many intervals of idle credit the limiter may bank.
// Zero means strict spacing.
func WithSlack(slack int) Option {
	return func(c *config) error {
		if slack < 0 {
			return fmt.Errorf("%w: slack must be >= 0, got %d", ErrInvalidConfiguration, slack)
		}
		c.slack = slack
		return nil
	}
}

// WithoutSlack disables idle credit entirely.
var WithoutSlack Option = WithSlack(0)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *config) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfiguration)
		}
		c.clock = clock
		return nil
	}
}

func buildConfig(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return config{}, err
		}
	}
	return cfg, nil
}

// interval derives the spacing between grants for rate takes per period.
func (c config) interval(rate int) (time.Duration, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: rate must be > 0, got %d", ErrInvalidConfiguration, rate)
	}
	interval := c.per / time.Duration(rate)
	if interval <= 0 {
		return 0, fmt.Errorf("%w: rate %d per %v is finer than the clock resolution; use NewUnlimited",
			ErrInvalidConfiguration, rate, c.per)
	}
	return interval, nil
}

// maxSlack converts the slack count into a duration, refusing counts whose
// product with interval does not fit in a time.Duration.
func (c config) maxSlack(interval time.Duration) (time.Duration, error) {
	if c.slack > 0 && int64(c.slack) > math.MaxInt64/int64(interval) {
		return 0, fmt.Errorf("%w: slack %d at interval %v overflows", ErrInvalidConfiguration, c.slack, interval)
	}
	return time.Duration(c.slack) * interval, nil
}
