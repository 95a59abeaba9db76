package ratelimit

import "fmt"

// Strategies lists the strategy names NewStrategy understands.
func Strategies() []string {
	return []string{StrategyLeakyBucket, StrategyTokenBucket, StrategyUnlimited}
}

// NewStrategy builds a limiter by strategy name. An empty name selects the
// leaky bucket. The rate is ignored by the unlimited strategy.
func NewStrategy(name string, rate int, opts ...Option) (ContextLimiter, error) {
	var (
		limiter ContextLimiter
		err     error
	)

	switch name {
	case "", StrategyLeakyBucket:
		var lb *LeakyBucket
		if lb, err = New(rate, opts...); err == nil {
			limiter = lb
		}
	case StrategyTokenBucket:
		var tb *TokenBucket
		if tb, err = NewTokenBucket(rate, opts...); err == nil {
			limiter = tb
		}
	case StrategyUnlimited:
		var u *Unlimited
		if u, err = NewUnlimited(opts...); err == nil {
			limiter = u
		}
	default:
		err = fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfiguration, name)
	}

	if err != nil {
		return nil, err
	}
	return limiter, nil
}
