// Package config provides parsing and validation of drip run profiles.
package config

import (
	_ "embed"
	"time"
)

// Profile is the root configuration for a drip run.
//
// Example YAML:
//
//	name: "api client pacing"
//	limiter:
//	  strategy: leaky-bucket
//	  rate: 100
//	  per: 1s
//	  slack: 0
//	load:
//	  callers: 8
//	  takes: 500
//	thresholds:
//	  - "$.intervals.min >= 9ms"
//	  - "$.observedRate <= 105"
type Profile struct {
	// Name of the run (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Limiter selects and configures the strategy under test
	Limiter LimiterConfig `json:"limiter" yaml:"limiter"`

	// Load describes the callers sharing the limiter
	Load LoadConfig `json:"load,omitempty" yaml:"load,omitempty"`

	// Thresholds are pass/fail expressions evaluated against the run result
	Thresholds []string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// LimiterConfig configures the limiter.
type LimiterConfig struct {
	// Strategy is one of "leaky-bucket", "token-bucket", "unlimited"
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// Rate is the number of takes allowed per period
	Rate int `json:"rate,omitempty" yaml:"rate,omitempty"`

	// Per is the period the rate is expressed over (default: 1s)
	Per Duration `json:"per,omitempty" yaml:"per,omitempty"`

	// Slack is how many intervals of idle credit to keep (default: 10)
	Slack *int `json:"slack,omitempty" yaml:"slack,omitempty"`
}

// LoadConfig describes how the limiter is exercised.
type LoadConfig struct {
	// Callers is the number of goroutines sharing the limiter
	Callers int `json:"callers,omitempty" yaml:"callers,omitempty"`

	// Takes is the total number of takes across all callers
	Takes int64 `json:"takes,omitempty" yaml:"takes,omitempty"`

	// Duration bounds the run; with Takes set, whichever comes first ends it
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Work is simulated work each caller does after a take
	Work Duration `json:"work,omitempty" yaml:"work,omitempty"`
}

// profileSchema is the JSON Schema raw profile documents are checked against.
//
//go:embed profile.schema.json
var profileSchema string

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
