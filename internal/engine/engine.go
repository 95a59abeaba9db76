// Package engine runs a profile end to end: it builds the limiter, drives it
// with the configured callers, and judges the outcome against thresholds.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/drip/internal/config"
	"github.com/wesleyorama2/drip/internal/executor"
	"github.com/wesleyorama2/drip/internal/metrics"
	"github.com/wesleyorama2/drip/pkg/jsonpath"
	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

// Engine orchestrates a single run.
//
// Example usage:
//
//	p, _ := config.LoadProfile("pacing.yaml")
//	eng, _ := engine.NewEngine(p)
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Run passed: %v\n", result.Passed)
type Engine struct {
	profile   *config.Profile
	limiter   ratelimit.ContextLimiter
	clock     ratelimit.Clock
	collector *metrics.Collector
	logger    *slog.Logger

	mu        sync.RWMutex
	executor  *executor.Executor
	startTime time.Time
	running   bool
	stopping  bool // Stop arrived before the executor was built
}

// Option configures an Engine.
type Option func(*Engine)

// WithCollector exports live metrics through c while the run is in progress.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithLogger sets the logger for run diagnostics. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock runs the limiter and callers on c instead of the system clock.
func WithClock(c ratelimit.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// Result contains the complete outcome of a run.
type Result struct {
	RunID       string        `json:"runId" yaml:"runId"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	StartTime   time.Time     `json:"startTime" yaml:"startTime"`
	EndTime     time.Time     `json:"endTime" yaml:"endTime"`
	Duration    time.Duration `json:"duration" yaml:"duration"`

	// What was configured
	Limiter        ratelimit.Stats `json:"limiter" yaml:"limiter"`
	ConfiguredRate float64         `json:"configuredRate" yaml:"configuredRate"` // per second, 0 when unlimited
	Callers        int             `json:"callers" yaml:"callers"`

	// What was observed
	Takes        int64                `json:"takes" yaml:"takes"`
	Abandoned    int64                `json:"abandoned" yaml:"abandoned"`
	Wait         metrics.LatencyStats `json:"wait" yaml:"wait"`
	Intervals    metrics.LatencyStats `json:"intervals" yaml:"intervals"`
	ObservedRate float64              `json:"observedRate" yaml:"observedRate"`

	// Threshold evaluation
	Passed     bool              `json:"passed" yaml:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Error if the run was interrupted
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Expression string `json:"expression" yaml:"expression"`
	Path       string `json:"path" yaml:"path"`
	Passed     bool   `json:"passed" yaml:"passed"`
	Value      string `json:"value" yaml:"value"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// NewEngine validates the profile, applies defaults, and builds its limiter.
func NewEngine(profile *config.Profile, opts ...Option) (*Engine, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	config.ApplyDefaults(profile)

	e := &Engine{
		profile: profile,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}

	limiterOpts := profile.Limiter.Options()
	if e.clock != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithClock(e.clock))
	}

	limiter, err := ratelimit.NewStrategy(profile.Limiter.Strategy, profile.Limiter.Rate, limiterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter: %w", err)
	}
	e.limiter = limiter

	if sp, ok := limiter.(ratelimit.StatsProvider); ok && e.collector != nil {
		e.collector.Watch(sp)
	}

	return e, nil
}

// Run drives the limiter until the load is spent and returns the result.
// A run interrupted through ctx still returns the partial result alongside
// the error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.stopping = false
	e.executor = nil
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	load := e.profile.Load
	execConfig := &executor.Config{
		Callers:  load.Callers,
		Takes:    load.Takes,
		Duration: load.Duration.GetDuration(0),
		Work:     load.Work.GetDuration(0),
	}

	recorder := metrics.NewRecorderWithConfig(metrics.RecorderConfig{ExpectedTakes: load.Takes})
	exec, err := executor.New(execConfig, e.limiter, recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	if e.clock != nil {
		exec.WithClock(e.clock)
	}
	if e.collector != nil {
		exec.WithObserver(e.collector)
	}

	e.mu.Lock()
	e.executor = exec
	if e.stopping {
		_ = exec.Stop(ctx)
	}
	e.mu.Unlock()

	runID := uuid.New().String()
	e.logger.Info("run starting",
		"run_id", runID,
		"name", e.profile.Name,
		"strategy", e.profile.Limiter.Strategy,
		"rate", e.profile.Limiter.Rate,
		"per", e.profile.Limiter.Per.String(),
		"callers", load.Callers,
		"takes", load.Takes,
		"duration", load.Duration.String(),
	)

	runErr := exec.Run(ctx)

	result := e.buildResult(runID, recorder.Snapshot(), exec.GetStats())
	if runErr != nil {
		result.Error = runErr.Error()
	}

	result.Thresholds = e.evaluateThresholds(result)
	result.Passed = runErr == nil
	for _, tr := range result.Thresholds {
		if !tr.Passed {
			result.Passed = false
			break
		}
	}

	e.logger.Info("run finished",
		"run_id", runID,
		"takes", result.Takes,
		"observed_rate", result.ObservedRate,
		"conflicts", result.Limiter.Conflicts,
		"passed", result.Passed,
	)

	return result, runErr
}

func (e *Engine) limiterStats() ratelimit.Stats {
	if sp, ok := e.limiter.(ratelimit.StatsProvider); ok {
		return sp.Stats()
	}
	return ratelimit.Stats{Strategy: e.profile.Limiter.Strategy}
}

func (e *Engine) buildResult(runID string, snap *metrics.Snapshot, stats *executor.Stats) *Result {
	limiterStats := e.limiterStats()

	var configured float64
	if limiterStats.Interval > 0 {
		configured = float64(time.Second) / float64(limiterStats.Interval)
	}

	end := time.Now()
	return &Result{
		RunID:          runID,
		Name:           e.profile.Name,
		Description:    e.profile.Description,
		StartTime:      e.startTime,
		EndTime:        end,
		Duration:       end.Sub(e.startTime),
		Limiter:        limiterStats,
		ConfiguredRate: configured,
		Callers:        stats.TargetCallers,
		Takes:          snap.Takes,
		Abandoned:      stats.Abandoned,
		Wait:           snap.Wait,
		Intervals:      snap.Intervals,
		ObservedRate:   snap.ObservedRate,
	}
}

// evaluateThresholds checks each expression against the JSON form of the
// result, so any field of Result can be asserted on by its JSON path.
func (e *Engine) evaluateThresholds(result *Result) []ThresholdResult {
	if len(e.profile.Thresholds) == 0 {
		return nil
	}

	doc, err := json.Marshal(result)
	if err != nil {
		// Result holds only plain values; this cannot fail in practice.
		doc = []byte("{}")
	}

	results := make([]ThresholdResult, 0, len(e.profile.Thresholds))
	for _, expr := range e.profile.Thresholds {
		results = append(results, evaluateThreshold(expr, doc))
	}
	return results
}

func evaluateThreshold(expr string, doc []byte) ThresholdResult {
	result := ThresholdResult{Expression: expr}

	th, err := config.ParseThreshold(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}
	result.Path = th.Path

	actual, err := jsonpath.ExtractFloat(doc, th.Path)
	if err != nil {
		result.Message = err.Error()
		if raw, rawErr := jsonpath.Extract(doc, th.Path); rawErr == nil {
			result.Value = raw
		}
		return result
	}

	result.Value = th.Format(actual)
	result.Passed = th.Compare(actual)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s",
			th.Path, result.Value, th.Op, th.Format(th.Value))
	}
	return result
}

// GetProfile returns the (defaulted) profile.
func (e *Engine) GetProfile() *config.Profile {
	return e.profile
}

// Limiter returns the limiter under test.
func (e *Engine) Limiter() ratelimit.ContextLimiter {
	return e.limiter
}

// IsRunning returns true while Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// GetProgress returns run progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()
	if exec == nil {
		return 0
	}
	return exec.GetProgress()
}

// Stop ends a run early. Run returns normally with what was collected.
// Without a run in progress it does nothing.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	exec := e.executor
	if e.running && exec == nil {
		e.stopping = true
	}
	e.mu.Unlock()
	if exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}
