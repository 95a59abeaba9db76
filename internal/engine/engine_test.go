package engine

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/drip/internal/config"
	"github.com/wesleyorama2/drip/internal/metrics"
	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

// steppingClock is a fake clock for single-caller runs: sleeping advances it.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *steppingClock) After(d time.Duration) <-chan time.Time {
	c.Sleep(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func intPtr(i int) *int { return &i }

func strictProfile(thresholds ...string) *config.Profile {
	return &config.Profile{
		Name: "strict pacing",
		Limiter: config.LimiterConfig{
			Rate:  10,
			Slack: intPtr(0),
		},
		Load:       config.LoadConfig{Callers: 1, Takes: 11},
		Thresholds: thresholds,
	}
}

func TestNewEngine_InvalidProfile(t *testing.T) {
	_, err := NewEngine(&config.Profile{Limiter: config.LimiterConfig{Rate: 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid profile")
}

func TestNewEngine_AppliesDefaults(t *testing.T) {
	p := &config.Profile{
		Limiter: config.LimiterConfig{Rate: 100},
		Load:    config.LoadConfig{Takes: 1},
	}
	eng, err := NewEngine(p)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultName, eng.GetProfile().Name)
	assert.Equal(t, ratelimit.StrategyLeakyBucket, eng.GetProfile().Limiter.Strategy)
	assert.IsType(t, &ratelimit.LeakyBucket{}, eng.Limiter())
}

func TestNewEngine_Strategies(t *testing.T) {
	tests := []struct {
		strategy string
		want     interface{}
	}{
		{ratelimit.StrategyLeakyBucket, &ratelimit.LeakyBucket{}},
		{ratelimit.StrategyTokenBucket, &ratelimit.TokenBucket{}},
		{ratelimit.StrategyUnlimited, &ratelimit.Unlimited{}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			p := &config.Profile{
				Limiter: config.LimiterConfig{Strategy: tt.strategy, Rate: 10},
				Load:    config.LoadConfig{Takes: 1},
			}
			eng, err := NewEngine(p)
			require.NoError(t, err)
			assert.IsType(t, tt.want, eng.Limiter())
		})
	}
}

func TestEngine_Run_Deterministic(t *testing.T) {
	eng, err := NewEngine(strictProfile(
		"$.intervals.min >= 100ms",
		"$.observedRate <= 10.0001",
		"$.takes == 11",
	), WithClock(newSteppingClock()))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(11), result.Takes)
	assert.Equal(t, 100*time.Millisecond, result.Intervals.Min)
	assert.Equal(t, 100*time.Millisecond, result.Intervals.Max)
	assert.InDelta(t, 10.0, result.ObservedRate, 0.0001)
	assert.InDelta(t, 10.0, result.ConfiguredRate, 0.0001)
	assert.Equal(t, int64(11), result.Limiter.Takes)
	assert.Equal(t, time.Second, result.Limiter.TotalWait)
	assert.Equal(t, 1, result.Callers)

	require.Len(t, result.Thresholds, 3)
	for _, tr := range result.Thresholds {
		assert.True(t, tr.Passed, "threshold %s: %s", tr.Expression, tr.Message)
	}
	assert.True(t, result.Passed)
	assert.Equal(t, "100ms", result.Thresholds[0].Value)

	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err, "runId should be a UUID")
	assert.False(t, eng.IsRunning())
}

func TestEngine_Run_FailingThreshold(t *testing.T) {
	eng, err := NewEngine(strictProfile(
		"$.observedRate > 50",
		"$.limiter.missing < 1",
		"$.limiter.strategy > 1",
	), WithClock(newSteppingClock()))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	require.Len(t, result.Thresholds, 3)

	assert.False(t, result.Thresholds[0].Passed)
	assert.Contains(t, result.Thresholds[0].Message, "threshold: > 50")

	assert.False(t, result.Thresholds[1].Passed)
	assert.Contains(t, result.Thresholds[1].Message, "path not found")
	assert.Empty(t, result.Thresholds[1].Value)

	assert.False(t, result.Thresholds[2].Passed)
	assert.Contains(t, result.Thresholds[2].Message, "not a number")
	assert.Equal(t, ratelimit.StrategyLeakyBucket, result.Thresholds[2].Value)
}

func TestEngine_Run_Unlimited(t *testing.T) {
	p := &config.Profile{
		Limiter: config.LimiterConfig{Strategy: ratelimit.StrategyUnlimited},
		Load:    config.LoadConfig{Callers: 4, Takes: 200},
	}
	eng, err := NewEngine(p)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(200), result.Takes)
	assert.Zero(t, result.ConfiguredRate)
	assert.Equal(t, ratelimit.StrategyUnlimited, result.Limiter.Strategy)
}

func TestEngine_Run_Cancelled(t *testing.T) {
	p := &config.Profile{
		Limiter: config.LimiterConfig{Rate: 1, Slack: intPtr(0)},
		Load:    config.LoadConfig{Callers: 2, Takes: 100},
	}
	eng, err := NewEngine(p)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := eng.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, result)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.Error)
	assert.Less(t, result.Takes, int64(100))
}

func TestEngine_Run_Collector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(ratelimit.StrategyLeakyBucket, registry)

	eng, err := NewEngine(strictProfile(), WithClock(newSteppingClock()), WithCollector(collector))
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 11.0, values["drip_takes_total"])
	assert.Equal(t, 0.0, values["drip_active_callers"])
	assert.InDelta(t, 0.1, values["drip_interval_seconds"], 1e-9)
	assert.Contains(t, values, "drip_cas_conflicts_total")
	assert.Zero(t, values["drip_cas_conflicts_total"], "a single caller never loses a swap")
}

func TestEngine_Run_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	eng, err := NewEngine(strictProfile(), WithClock(newSteppingClock()), WithLogger(logger))
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "run starting")
	assert.Contains(t, buf.String(), "run finished")
	assert.Contains(t, buf.String(), "strategy=leaky-bucket")
}

func TestEngine_StopDuringRun(t *testing.T) {
	p := &config.Profile{
		Limiter: config.LimiterConfig{Rate: 1, Slack: intPtr(0)},
		Load:    config.LoadConfig{Callers: 2, Takes: 100},
	}
	eng, err := NewEngine(p)
	require.NoError(t, err)

	done := make(chan *Result, 1)
	go func() {
		result, err := eng.Run(context.Background())
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, func() bool {
		return eng.Limiter().(ratelimit.StatsProvider).Stats().Takes > 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, eng.Stop(context.Background()))

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.Empty(t, result.Error)
		assert.Less(t, result.Takes, int64(100))
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
}

func TestEngine_StopBeforeRun(t *testing.T) {
	eng, err := NewEngine(strictProfile())
	require.NoError(t, err)
	assert.NoError(t, eng.Stop(context.Background()))
	assert.Zero(t, eng.GetProgress())
}
