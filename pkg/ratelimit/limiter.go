package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidConfiguration is returned by constructors when the requested
// limiter cannot be built, for example when the rate is not positive.
var ErrInvalidConfiguration = errors.New("invalid rate limiter configuration")

// Limiter paces callers. Take blocks until the caller may proceed and
// returns the instant the caller was dispatched at.
type Limiter interface {
	Take() time.Time
}

// ContextLimiter is a Limiter whose wait can be abandoned.
//
// TakeContext returns ctx.Err() if the context is done before the caller's
// slot arrives. A slot that was already reserved is not given back.
type ContextLimiter interface {
	Limiter
	TakeContext(ctx context.Context) (time.Time, error)
}

// Stats contains statistics about a limiter's operation.
type Stats struct {
	Strategy  string        `json:"strategy" yaml:"strategy"`
	Interval  time.Duration `json:"interval" yaml:"interval"`   // Minimum spacing between grants
	MaxSlack  time.Duration `json:"maxSlack" yaml:"maxSlack"`   // Largest idle credit kept
	Takes     int64         `json:"takes" yaml:"takes"`         // Grants handed out
	Conflicts int64         `json:"conflicts" yaml:"conflicts"` // Lost compare-and-swap attempts
	TotalWait time.Duration `json:"totalWait" yaml:"totalWait"` // Sum of computed sleeps
}

// StatsProvider is implemented by limiters that expose Stats.
type StatsProvider interface {
	Stats() Stats
}
