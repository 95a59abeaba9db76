// Package jsonpath reads values out of JSON documents with a small JSONPath
// dialect ($.a.b[0].c) on top of gjson.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract returns the value at path as a string. Objects and arrays come
// back as raw JSON, null as "null".
func Extract(json []byte, path string) (string, error) {
	result, err := lookup(json, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ExtractFloat returns the numeric value at path.
func ExtractFloat(json []byte, path string) (float64, error) {
	result, err := lookup(json, path)
	if err != nil {
		return 0, err
	}
	if result.Type != gjson.Number {
		return 0, fmt.Errorf("value at %s is %s, not a number", path, result.Type)
	}
	return result.Float(), nil
}

// Valid reports whether path is syntactically usable.
func Valid(path string) bool {
	return strings.HasPrefix(path, "$") && !strings.Contains(path, "..")
}

func lookup(json []byte, path string) (gjson.Result, error) {
	if len(json) == 0 {
		return gjson.Result{}, fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}
	if !Valid(path) {
		return gjson.Result{}, fmt.Errorf("unsupported JSONPath expression: %s", path)
	}

	result := gjson.GetBytes(json, toGjsonPath(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// toGjsonPath converts $.users[0].name into users.0.name.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// Bracketed keys: $['name'] and $["name"]
	for _, q := range []string{"'", `"`} {
		path = strings.ReplaceAll(path, "["+q, ".")
		path = strings.ReplaceAll(path, q+"]", "")
	}

	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.TrimPrefix(path, ".")
}
