package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// StrategyTokenBucket names the TokenBucket strategy.
const StrategyTokenBucket = "token-bucket"

// TokenBucket is a Limiter backed by golang.org/x/time/rate.
//
// Unlike LeakyBucket it starts full: the first burst takes go through
// immediately, where burst is the configured slack (at least one).
type TokenBucket struct {
	limiter  *rate.Limiter
	interval time.Duration
	burst    int
	clock    Clock

	takes     atomic.Int64
	totalWait atomic.Int64
}

// NewTokenBucket creates a token bucket refilling one token per interval.
func NewTokenBucket(r int, opts ...Option) (*TokenBucket, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	interval, err := cfg.interval(r)
	if err != nil {
		return nil, err
	}

	if _, err := cfg.maxSlack(interval); err != nil {
		return nil, err
	}

	burst := cfg.slack
	if burst < 1 {
		burst = 1
	}

	return &TokenBucket{
		limiter:  rate.NewLimiter(rate.Every(interval), burst),
		interval: interval,
		burst:    burst,
		clock:    cfg.clock,
	}, nil
}

// Take blocks until a token is available.
func (tb *TokenBucket) Take() time.Time {
	now := tb.clock.Now()
	delay := tb.reserve(now).DelayFrom(now)
	if delay > 0 {
		tb.clock.Sleep(delay)
	}
	return now.Add(delay)
}

// TakeContext is Take with cancellation. Unlike LeakyBucket, an abandoned
// wait hands its token back.
func (tb *TokenBucket) TakeContext(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	now := tb.clock.Now()
	r := tb.reserve(now)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return now, nil
	}

	select {
	case <-ctx.Done():
		r.CancelAt(tb.clock.Now())
		tb.takes.Add(-1)
		tb.totalWait.Add(-int64(delay))
		return time.Time{}, ctx.Err()
	case <-tb.clock.After(delay):
		return now.Add(delay), nil
	}
}

func (tb *TokenBucket) reserve(now time.Time) *rate.Reservation {
	// One token never exceeds burst, so the reservation is always OK.
	r := tb.limiter.ReserveN(now, 1)
	tb.takes.Add(1)
	tb.totalWait.Add(int64(r.DelayFrom(now)))
	return r
}

// Stats returns statistics about the bucket's operation.
func (tb *TokenBucket) Stats() Stats {
	return Stats{
		Strategy:  StrategyTokenBucket,
		Interval:  tb.interval,
		MaxSlack:  time.Duration(tb.burst) * tb.interval,
		Takes:     tb.takes.Load(),
		TotalWait: time.Duration(tb.totalWait.Load()),
	}
}

var (
	_ ContextLimiter = (*TokenBucket)(nil)
	_ StatsProvider  = (*TokenBucket)(nil)
)
