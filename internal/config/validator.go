package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

// ValidationError represents a profile validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the whole profile.
//
// Returns nil if valid, or a ValidationErrors containing every problem found.
func (p *Profile) Validate() error {
	errs := &ValidationErrors{}

	validateLimiter(&p.Limiter, errs)
	validateLoad(&p.Load, errs)

	for i, expr := range p.Thresholds {
		if _, err := ParseThreshold(expr); err != nil {
			errs.Add(fmt.Sprintf("thresholds[%d]", i), err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateLimiter(l *LimiterConfig, errs *ValidationErrors) {
	known := false
	for _, s := range ratelimit.Strategies() {
		if l.Strategy == s {
			known = true
			break
		}
	}
	if l.Strategy != "" && !known {
		errs.Add("limiter.strategy", fmt.Sprintf("unknown strategy: %s", l.Strategy))
		return
	}

	if l.Strategy != ratelimit.StrategyUnlimited && l.Rate <= 0 {
		errs.Add("limiter.rate", "rate must be > 0")
	}
	if l.Per < 0 {
		errs.Add("limiter.per", "per cannot be negative")
	}
	if l.Slack != nil && *l.Slack < 0 {
		errs.Add("limiter.slack", "slack cannot be negative")
	}
	if l.Slack != nil && l.Strategy != ratelimit.StrategyUnlimited && l.Rate > 0 && l.Per >= 0 {
		per := l.Per.GetDuration(DefaultPer)
		if interval := per / time.Duration(l.Rate); interval > 0 && int64(*l.Slack) > math.MaxInt64/int64(interval) {
			errs.Add("limiter.slack", fmt.Sprintf("slack %d is too large for an interval of %v", *l.Slack, interval))
		}
	}
}

func validateLoad(l *LoadConfig, errs *ValidationErrors) {
	if l.Callers < 0 {
		errs.Add("load.callers", "callers cannot be negative")
	}
	if l.Takes < 0 {
		errs.Add("load.takes", "takes cannot be negative")
	}
	if l.Duration < 0 {
		errs.Add("load.duration", "duration cannot be negative")
	}
	if l.Work < 0 {
		errs.Add("load.work", "work cannot be negative")
	}
	if l.Takes == 0 && l.Duration == 0 {
		errs.Add("load", "either takes or duration is required")
	}
}
