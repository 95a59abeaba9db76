package ratelimit

import (
	"context"
	"sync/atomic"
	"time"
)

// StrategyUnlimited names the Unlimited strategy.
const StrategyUnlimited = "unlimited"

// Unlimited is a Limiter with a zero interval: every caller is eligible at
// once and Take never blocks. It exists so that "no limit" is something a
// caller asks for, never the accident of a rate too fine for the clock.
type Unlimited struct {
	clock Clock
	takes atomic.Int64
}

// NewUnlimited creates a limiter that never waits. Only WithClock has an
// effect; Per and WithSlack are accepted and ignored.
func NewUnlimited(opts ...Option) (*Unlimited, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Unlimited{clock: cfg.clock}, nil
}

// Take returns the current time.
func (u *Unlimited) Take() time.Time {
	u.takes.Add(1)
	return u.clock.Now()
}

// TakeContext returns the current time unless ctx is already done.
func (u *Unlimited) TakeContext(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return u.Take(), nil
}

// Stats returns statistics about the limiter's operation.
func (u *Unlimited) Stats() Stats {
	return Stats{
		Strategy: StrategyUnlimited,
		Takes:    u.takes.Load(),
	}
}

var (
	_ ContextLimiter = (*Unlimited)(nil)
	_ StatsProvider  = (*Unlimited)(nil)
)
