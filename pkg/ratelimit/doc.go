// Package ratelimit provides blocking rate limiters for pacing calls.
//
// The primary implementation is the LeakyBucket, which spaces successive
// grants at least one interval apart and never lets more than a bounded
// amount of idle credit accumulate.
//
// # Leaky Bucket Algorithm
//
// The bucket keeps a single scheduling state: the earliest instant at which
// the next grant may fire. Take reads that state, decides how long the caller
// has to wait, and installs the successor state with a compare-and-swap. If
// another goroutine installed a state first, the caller re-reads the clock
// and tries again. No mutex is involved and the retry loop never blocks; the
// only blocking point is the sleep after a successful install.
//
// # Basic Usage
//
//	limiter, err := ratelimit.New(100) // 100 takes per second
//	if err != nil {
//	    return err
//	}
//
//	for {
//	    limiter.Take()
//	    // Do rate limited work
//	}
//
// # Slack
//
// By default a limiter keeps up to ten intervals of idle credit, so a caller
// that falls behind can catch up in a short burst. WithoutSlack disables this
// for strict spacing:
//
//	limiter, _ := ratelimit.New(10, ratelimit.WithoutSlack)
//
// # Fairness
//
// Installs are serialized, but the goroutine that entered Take first is not
// guaranteed to be the one that returns first. Under heavy contention a late
// arrival can win the compare-and-swap ahead of an earlier caller.
//
// # Thread Safety
//
// All limiters in this package are safe for concurrent use from multiple
// goroutines.
package ratelimit
