package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

func TestCollector_NewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(ratelimit.StrategyLeakyBucket, registry)

	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
	if NewCollector("x", nil).Registry() == nil {
		t.Error("Expected a registry to be created")
	}
}

func TestCollector_ObserveTake(t *testing.T) {
	collector := NewCollector(ratelimit.StrategyLeakyBucket, nil)

	collector.ObserveTake(0)
	collector.ObserveTake(20 * time.Millisecond)
	collector.ObserveTake(2 * time.Second)

	if got := testutil.ToFloat64(collector.takes); got != 3 {
		t.Errorf("takes_total = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(collector.wait); got != 1 {
		t.Errorf("wait histogram series = %d, want 1", got)
	}
}

func TestCollector_Callers(t *testing.T) {
	collector := NewCollector(ratelimit.StrategyTokenBucket, nil)

	collector.CallerStarted()
	collector.CallerStarted()
	collector.CallerStopped()

	if got := testutil.ToFloat64(collector.callers); got != 1 {
		t.Errorf("active_callers = %v, want 1", got)
	}
}

type fixedStats ratelimit.Stats

func (f *fixedStats) Stats() ratelimit.Stats { return ratelimit.Stats(*f) }

func TestCollector_Watch(t *testing.T) {
	collector := NewCollector(ratelimit.StrategyLeakyBucket, nil)

	if got := testutil.ToFloat64(collector.conflicts); got != 0 {
		t.Errorf("cas_conflicts_total before Watch = %v, want 0", got)
	}

	stats := &fixedStats{Interval: 10 * time.Millisecond, Conflicts: 42}
	collector.Watch(stats)

	if got := testutil.ToFloat64(collector.conflicts); got != 42 {
		t.Errorf("cas_conflicts_total = %v, want 42", got)
	}
	if got := testutil.ToFloat64(collector.interval); got != 0.01 {
		t.Errorf("interval_seconds = %v, want 0.01", got)
	}

	// Read at scrape time, not copied at Watch.
	stats.Conflicts = 50
	if got := testutil.ToFloat64(collector.conflicts); got != 50 {
		t.Errorf("cas_conflicts_total after more conflicts = %v, want 50", got)
	}

	collector.Watch(nil)
	if got := testutil.ToFloat64(collector.conflicts); got != 50 {
		t.Errorf("Watch(nil) replaced the source: cas_conflicts_total = %v", got)
	}
}

func TestCollector_ConflictsIsCounter(t *testing.T) {
	collector := NewCollector(ratelimit.StrategyLeakyBucket, nil)

	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "drip_cas_conflicts_total" {
			if got := mf.GetType().String(); got != "COUNTER" {
				t.Errorf("drip_cas_conflicts_total type = %s, want COUNTER", got)
			}
			return
		}
	}
	t.Error("drip_cas_conflicts_total not registered")
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(ratelimit.StrategyLeakyBucket, nil)
	collector.ObserveTake(time.Millisecond)

	server := httptest.NewServer(collector.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	for _, want := range []string{
		`drip_takes_total{strategy="leaky-bucket"} 1`,
		"drip_take_wait_seconds_bucket",
		"drip_active_callers",
		"drip_cas_conflicts_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
