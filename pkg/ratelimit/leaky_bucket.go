package ratelimit

import (
	"context"
	"sync/atomic"
	"time"
)

// StrategyLeakyBucket names the LeakyBucket strategy.
const StrategyLeakyBucket = "leaky-bucket"

// state is one installed scheduling decision. Values are never modified
// after they are published; every Take builds a new one.
type state struct {
	next     time.Time     // Earliest instant the next grant may fire
	sleepFor time.Duration // Wait decided by the install that produced this state
}

// LeakyBucket implements the leaky bucket algorithm without a mutex.
//
// The shared state is a pointer to an immutable value. Take loads it,
// computes the successor from the current time, and publishes the successor
// with a compare-and-swap. A failed swap means another caller got there
// first, so the caller starts over with a fresh reading of the clock.
// Since every iteration either installs a state or observes that someone
// else did, some caller always makes progress.
//
// # Example
//
//	lb, _ := ratelimit.New(100) // 100 takes per second
//
//	for {
//	    lb.Take()
//	    // Execute iteration
//	}
type LeakyBucket struct {
	state atomic.Pointer[state]

	interval time.Duration
	maxSlack time.Duration
	clock    Clock

	// Metrics
	takes     atomic.Int64 // Successful installs
	conflicts atomic.Int64 // Lost compare-and-swap attempts
	totalWait atomic.Int64 // Sum of sleeps in nanoseconds
}

// New creates a leaky bucket that allows rate takes per period (one second
// unless Per is given).
//
// It fails with ErrInvalidConfiguration when rate is not positive, when an
// option is invalid, when the resulting interval rounds down to zero, or when
// the slack does not fit in a time.Duration.
func New(rate int, opts ...Option) (*LeakyBucket, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	interval, err := cfg.interval(rate)
	if err != nil {
		return nil, err
	}

	maxSlack, err := cfg.maxSlack(interval)
	if err != nil {
		return nil, err
	}

	lb := &LeakyBucket{
		interval: interval,
		maxSlack: maxSlack,
		clock:    cfg.clock,
	}
	lb.state.Store(&state{next: cfg.clock.Now()})

	return lb, nil
}

// Take blocks until the caller's slot arrives and returns it.
func (lb *LeakyBucket) Take() time.Time {
	// Background is never done, so reserve cannot fail here.
	s, now, _ := lb.reserve(context.Background())
	if s.sleepFor > 0 {
		lb.clock.Sleep(s.sleepFor)
	}
	return now.Add(s.sleepFor)
}

// TakeContext is Take with cancellation. The context is checked between
// retries and while sleeping. Once a slot has been reserved it stays
// consumed even if the wait is abandoned.
func (lb *LeakyBucket) TakeContext(ctx context.Context) (time.Time, error) {
	s, now, err := lb.reserve(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if s.sleepFor <= 0 {
		return now, nil
	}

	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case <-lb.clock.After(s.sleepFor):
		return now.Add(s.sleepFor), nil
	}
}

// reserve runs the install loop and returns the installed state together
// with the clock reading it was computed from.
func (lb *LeakyBucket) reserve(ctx context.Context) (*state, time.Time, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, time.Time{}, err
		}

		prev := lb.state.Load()
		now := lb.clock.Now()
		next := lb.schedule(prev, now)

		if lb.state.CompareAndSwap(prev, next) {
			lb.takes.Add(1)
			lb.totalWait.Add(int64(next.sleepFor))
			return next, now, nil
		}
		lb.conflicts.Add(1)
	}
}

// schedule computes the successor of prev as seen at now.
//
// A caller arriving before prev.next waits out the difference. A caller
// arriving after it goes immediately, but the grant is never placed earlier
// than now-maxSlack, which caps the credit an idle bucket can bank.
func (lb *LeakyBucket) schedule(prev *state, now time.Time) *state {
	grant := prev.next
	if floor := now.Add(-lb.maxSlack); grant.Before(floor) {
		grant = floor
	}

	var sleepFor time.Duration
	if elapsed := now.Sub(grant); elapsed < 0 {
		sleepFor = -elapsed
	}

	return &state{
		next:     grant.Add(lb.interval),
		sleepFor: sleepFor,
	}
}

// Interval returns the minimum spacing between grants.
func (lb *LeakyBucket) Interval() time.Duration {
	return lb.interval
}

// MaxSlack returns the largest idle credit the bucket keeps.
func (lb *LeakyBucket) MaxSlack() time.Duration {
	return lb.maxSlack
}

// Stats returns statistics about the bucket's operation.
func (lb *LeakyBucket) Stats() Stats {
	return Stats{
		Strategy:  StrategyLeakyBucket,
		Interval:  lb.interval,
		MaxSlack:  lb.maxSlack,
		Takes:     lb.takes.Load(),
		Conflicts: lb.conflicts.Load(),
		TotalWait: time.Duration(lb.totalWait.Load()),
	}
}

var (
	_ ContextLimiter = (*LeakyBucket)(nil)
	_ StatsProvider  = (*LeakyBucket)(nil)
)
