package config

import (
	"testing"
	"time"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		expr    string
		path    string
		op      string
		value   float64
		wantErr bool
	}{
		{"$.intervals.min >= 9ms", "$.intervals.min", ">=", float64(9 * time.Millisecond), false},
		{"$.observedRate <= 105", "$.observedRate", "<=", 105, false},
		{"$.takes == 500", "$.takes", "==", 500, false},
		{"$.limiter.conflicts<10", "$.limiter.conflicts", "<", 10, false},
		{"  $.wait.p99 < 1.5s  ", "$.wait.p99", "<", float64(1500 * time.Millisecond), false},
		{"", "", "", 0, true},
		{"observedRate < 5", "", "", 0, true},
		{"$.a ~ 5", "", "", 0, true},
		{"$.a < soon", "", "", 0, true},
		{"$..a < 5", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			th, err := ParseThreshold(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseThreshold() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if th.Path != tt.path || th.Op != tt.op || th.Value != tt.value {
				t.Errorf("ParseThreshold() = %+v, want %s %s %v", th, tt.path, tt.op, tt.value)
			}
		})
	}
}

func TestThreshold_Compare(t *testing.T) {
	tests := []struct {
		op     string
		actual float64
		want   bool
	}{
		{"<", 4, true},
		{"<", 5, false},
		{"<=", 5, true},
		{">", 6, true},
		{">=", 4, false},
		{"==", 5, true},
		{"!=", 5, false},
	}

	for _, tt := range tests {
		th := &Threshold{Op: tt.op, Value: 5}
		if got := th.Compare(tt.actual); got != tt.want {
			t.Errorf("%v %s 5 = %v, want %v", tt.actual, tt.op, got, tt.want)
		}
	}
}

func TestThreshold_Format(t *testing.T) {
	d, err := ParseThreshold("$.wait.p99 < 20ms")
	if err != nil {
		t.Fatalf("ParseThreshold() error = %v", err)
	}
	if got := d.Format(float64(15 * time.Millisecond)); got != "15ms" {
		t.Errorf("Format() = %q, want 15ms", got)
	}

	n, err := ParseThreshold("$.observedRate <= 105")
	if err != nil {
		t.Fatalf("ParseThreshold() error = %v", err)
	}
	if got := n.Format(99.5); got != "99.5" {
		t.Errorf("Format() = %q, want 99.5", got)
	}
}
