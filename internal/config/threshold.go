package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/drip/pkg/jsonpath"
)

// Threshold is a parsed pass/fail expression such as "$.intervals.min >= 9ms".
type Threshold struct {
	Expression string
	Path       string
	Op         string
	Value      float64 // Durations are stored in nanoseconds
	Duration   bool    // Value was written as a duration
}

var thresholdPattern = regexp.MustCompile(`^(\$\S*)\s*(<=|>=|==|!=|<|>)\s*(\S+)$`)

// ParseThreshold parses "<jsonpath> <op> <value>". The value may be a number
// or a Go duration, which is compared as nanoseconds.
func ParseThreshold(expr string) (*Threshold, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("threshold expression cannot be empty")
	}

	m := thresholdPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("invalid threshold %q: want '<$.path> <op> <value>'", expr)
	}
	if !jsonpath.Valid(m[1]) {
		return nil, fmt.Errorf("invalid threshold %q: bad path %s", expr, m[1])
	}

	value, isDuration, err := parseThresholdValue(m[3])
	if err != nil {
		return nil, fmt.Errorf("invalid threshold %q: %w", expr, err)
	}

	return &Threshold{
		Expression: expr,
		Path:       m[1],
		Op:         m[2],
		Value:      value,
		Duration:   isDuration,
	}, nil
}

func parseThresholdValue(s string) (float64, bool, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, false, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return float64(d), true, nil
	}
	return 0, false, fmt.Errorf("value %s is neither a number nor a duration", s)
}

// Format renders a value the way the threshold was written.
func (t *Threshold) Format(v float64) string {
	if t.Duration {
		return time.Duration(v).String()
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Compare applies the threshold's operator to actual.
func (t *Threshold) Compare(actual float64) bool {
	switch t.Op {
	case "<":
		return actual < t.Value
	case "<=":
		return actual <= t.Value
	case ">":
		return actual > t.Value
	case ">=":
		return actual >= t.Value
	case "==":
		return actual == t.Value
	case "!=":
		return actual != t.Value
	default:
		return false
	}
}
