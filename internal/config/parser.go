package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/drip/pkg/jsonschema"
)

var compiledSchema = jsonschema.MustCompile("profile.schema.json", profileSchema)

// LoadProfile loads a run profile from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The document is checked against the profile schema before it is decoded.
// Semantic validation is left to Validate.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	return ParseProfile(data, path)
}

// ParseProfile parses profile data. The format is chosen from the extension
// of path, defaulting to YAML.
func ParseProfile(data []byte, path string) (*Profile, error) {
	doc, err := decodeDocument(data, path)
	if err != nil {
		return nil, err
	}

	if errs := compiledSchema.Validate(doc); len(errs) > 0 {
		return nil, fmt.Errorf("profile does not match schema: %w", errs)
	}

	// Re-encode the generic document as JSON so that both input formats go
	// through the same typed decoder.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize profile: %w", err)
	}

	var profile Profile
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	return &profile, nil
}

// decodeDocument turns raw bytes into the generic shape encoding/json
// produces, which is what the schema validator expects.
func decodeDocument(data []byte, path string) (interface{}, error) {
	var raw interface{}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON profile: %w", err)
		}
		return raw, nil
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML profile: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse profile (unknown format %s): %w", ext, err)
		}
	}

	// yaml.v3 yields ints and map[string]interface{}; round-trip through
	// JSON to get float64 numbers like the JSON path does.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML profile: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert YAML profile: %w", err)
	}
	return doc, nil
}
