package jsonschema

import (
	"encoding/json"
	"strings"
	"testing"
)

const limiterSchema = `{
	"type": "object",
	"properties": {
		"strategy": {"enum": ["leaky-bucket", "token-bucket"]},
		"rate": {"type": "integer", "minimum": 1},
		"slack": {"type": "integer", "minimum": 0}
	},
	"required": ["rate"],
	"additionalProperties": false
}`

func decode(t *testing.T, doc string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		t.Fatalf("bad test document: %v", err)
	}
	return v
}

func TestSchema_Validate(t *testing.T) {
	schema, err := Compile("limiter.json", limiterSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name      string
		doc       string
		wantErrs  int
		wantMatch string
	}{
		{"valid", `{"rate": 10, "slack": 0}`, 0, ""},
		{"missing rate", `{"slack": 1}`, 1, "rate"},
		{"zero rate", `{"rate": 0}`, 1, "/rate"},
		{"unknown strategy", `{"rate": 1, "strategy": "gcra"}`, 1, "/strategy"},
		{"extra field", `{"rate": 1, "burst": 3}`, 1, "burst"},
		{"two problems", `{"rate": 0, "slack": -1}`, 2, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := schema.Validate(decode(t, tt.doc))
			if len(errs) != tt.wantErrs {
				t.Fatalf("Validate() returned %d errors (%v), want %d", len(errs), errs, tt.wantErrs)
			}
			if tt.wantMatch != "" && !strings.Contains(errs.Error(), tt.wantMatch) {
				t.Errorf("Validate() = %q, want it to mention %q", errs.Error(), tt.wantMatch)
			}
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile("broken.json", `{"type": 12}`); err == nil {
		t.Error("Compile() should reject a malformed schema")
	}
	if _, err := Compile("notjson.json", `{`); err == nil {
		t.Error("Compile() should reject invalid JSON")
	}
}

func TestMustCompile_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustCompile() did not panic on a bad schema")
		}
	}()
	MustCompile("broken.json", `{`)
}

func TestValidationErrors_Error(t *testing.T) {
	var none ValidationErrors
	if none.Error() != "" {
		t.Errorf("empty ValidationErrors.Error() = %q", none.Error())
	}

	schema := MustCompile("limiter.json", limiterSchema)
	errs := schema.Validate(decode(t, `{"rate": 0, "slack": -1}`))
	if !strings.Contains(errs.Error(), "; ") {
		t.Errorf("joined errors = %q, want '; ' separator", errs.Error())
	}
}
