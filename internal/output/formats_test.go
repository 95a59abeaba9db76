package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(true), FormatJSON); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc["runId"] != "2f1c7c3e-5d7b-4d3a-9a51-0d3c2f7b9e11" {
		t.Errorf("runId = %v", doc["runId"])
	}
	intervals := doc["intervals"].(map[string]interface{})
	if intervals["min"] != float64(10000000) {
		t.Errorf("intervals.min = %v, want nanoseconds", intervals["min"])
	}
}

func TestWriteResult_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, sampleResult(true), FormatYAML); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	limiter := doc["limiter"].(map[string]interface{})
	if limiter["interval"] != "10ms" {
		t.Errorf("limiter.interval = %v, want 10ms", limiter["interval"])
	}
}

func TestWriteResult_Text(t *testing.T) {
	if err := WriteResult(&bytes.Buffer{}, sampleResult(true), FormatText); err == nil {
		t.Error("WriteResult() with text format expected error")
	}
}
