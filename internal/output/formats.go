package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/drip/internal/engine"
)

// Format represents the available output formats
type Format string

const (
	// FormatText is the default human-readable summary
	FormatText Format = "text"
	// FormatJSON outputs the result document as JSON
	FormatJSON Format = "json"
	// FormatYAML outputs the result document as YAML
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (want text, json or yaml)", s)
	}
}

// WriteResult encodes result to w in a machine-readable format. Durations
// are written as nanoseconds in JSON and as duration strings in YAML.
func WriteResult(w io.Writer, result *engine.Result, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result as JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result as YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %s is not machine-readable", format)
	}
}
