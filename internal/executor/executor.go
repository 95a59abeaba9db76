// Package executor drives a limiter with a pool of concurrent callers.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/drip/internal/metrics"
	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

// Config contains configuration for an executor.
type Config struct {
	// Callers is the number of goroutines sharing the limiter
	Callers int `json:"callers" yaml:"callers"`

	// Takes is the total number of takes across all callers (0 = unbounded)
	Takes int64 `json:"takes,omitempty" yaml:"takes,omitempty"`

	// Duration bounds the run (0 = unbounded)
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Work is how long each caller stays busy after a take
	Work time.Duration `json:"work,omitempty" yaml:"work,omitempty"`

	// GracefulStop bounds how long Stop waits for callers (default: 30s)
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// ValidationError represents an executor configuration error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Callers <= 0 {
		return &ValidationError{Field: "callers", Message: "callers must be > 0"}
	}
	if c.Takes < 0 {
		return &ValidationError{Field: "takes", Message: "takes cannot be negative"}
	}
	if c.Duration < 0 {
		return &ValidationError{Field: "duration", Message: "duration cannot be negative"}
	}
	if c.Takes == 0 && c.Duration == 0 {
		return &ValidationError{Field: "takes", Message: "either takes or duration must be > 0"}
	}
	if c.Work < 0 {
		return &ValidationError{Field: "work", Message: "work cannot be negative"}
	}
	return nil
}

// Observer receives live progress. metrics.Collector implements it.
type Observer interface {
	ObserveTake(wait time.Duration)
	CallerStarted()
	CallerStopped()
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime time.Time     `json:"startTime"`
	Elapsed   time.Duration `json:"elapsed"`

	ActiveCallers int `json:"activeCallers"`
	TargetCallers int `json:"targetCallers"`

	// Takes counts granted takes; Abandoned counts waits cut short by
	// cancellation or the end of the run
	Takes      int64 `json:"takes"`
	TotalTakes int64 `json:"totalTakes"`
	Abandoned  int64 `json:"abandoned"`
}

// Executor runs a fixed pool of callers against one shared limiter until
// the take budget is spent or the duration expires, whichever comes first.
//
// Each caller loops: take, record, work. The takes budget is shared, so
// callers compete for it exactly as they compete for the limiter.
type Executor struct {
	config   *Config
	limiter  ratelimit.ContextLimiter
	recorder *metrics.Recorder
	observer Observer
	clock    ratelimit.Clock

	// State
	startTime     time.Time
	activeCallers atomic.Int32
	claimed       atomic.Int64
	takes         atomic.Int64
	abandoned     atomic.Int64
	running       atomic.Bool

	// Cancellation
	cancelFunc context.CancelFunc
	stopped    bool
	wg         sync.WaitGroup

	mu sync.RWMutex
}

// New creates an executor. The recorder receives every granted take.
func New(config *Config, limiter ratelimit.ContextLimiter, recorder *metrics.Recorder) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if limiter == nil {
		return nil, fmt.Errorf("executor requires a limiter")
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}

	return &Executor{
		config:   config,
		limiter:  limiter,
		recorder: recorder,
		clock:    ratelimit.SystemClock(),
	}, nil
}

// WithObserver attaches a live observer. Call before Run.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observer = o
	return e
}

// WithClock sets the clock used to measure waits and pace work. It should
// be the clock the limiter was built with. Call before Run.
func (e *Executor) WithClock(c ratelimit.Clock) *Executor {
	if c != nil {
		e.clock = c
	}
	return e
}

// Run starts the callers and blocks until they have all returned.
func (e *Executor) Run(ctx context.Context) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if e.config.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.config.Duration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e.mu.Lock()
	e.startTime = time.Now()
	e.cancelFunc = cancel
	if e.stopped {
		cancel()
	}
	e.mu.Unlock()
	e.running.Store(true)

	for i := 0; i < e.config.Callers; i++ {
		e.wg.Add(1)
		go e.runCaller(runCtx)
	}

	e.wg.Wait()
	e.running.Store(false)

	// Cancellation by the parent is an interruption; expiry of our own
	// duration is the normal end of a timed run.
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// runCaller takes from the limiter until the budget or context runs out.
func (e *Executor) runCaller(ctx context.Context) {
	defer e.wg.Done()

	e.activeCallers.Add(1)
	if e.observer != nil {
		e.observer.CallerStarted()
	}
	defer func() {
		e.activeCallers.Add(-1)
		if e.observer != nil {
			e.observer.CallerStopped()
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if !e.claim() {
			return
		}

		requested := e.clock.Now()
		granted, err := e.limiter.TakeContext(ctx)
		if err != nil {
			e.abandoned.Add(1)
			return
		}

		wait := granted.Sub(requested)
		if wait < 0 {
			wait = 0
		}
		e.takes.Add(1)
		e.recorder.Record(granted, wait)
		if e.observer != nil {
			e.observer.ObserveTake(wait)
		}

		if e.config.Work > 0 {
			select {
			case <-ctx.Done():
				return
			case <-e.clock.After(e.config.Work):
			}
		}
	}
}

// claim reserves one take from the shared budget.
func (e *Executor) claim() bool {
	if e.config.Takes == 0 {
		return true
	}
	return e.claimed.Add(1) <= e.config.Takes
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *Executor) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if !e.running.Load() {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}

	var progress float64
	if e.config.Takes > 0 {
		progress = float64(e.takes.Load()) / float64(e.config.Takes)
	}
	if e.config.Duration > 0 {
		byTime := float64(time.Since(start)) / float64(e.config.Duration)
		if byTime > progress {
			progress = byTime
		}
	}
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveCallers returns the number of callers currently running.
func (e *Executor) GetActiveCallers() int {
	return int(e.activeCallers.Load())
}

// GetStats returns executor statistics.
func (e *Executor) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}

	return &Stats{
		StartTime:     e.startTime,
		Elapsed:       elapsed,
		ActiveCallers: int(e.activeCallers.Load()),
		TargetCallers: e.config.Callers,
		Takes:         e.takes.Load(),
		TotalTakes:    e.config.Takes,
		Abandoned:     e.abandoned.Load(),
	}
}

// Stop cancels the run and waits for callers to return. Stopping before
// Run makes Run return without taking.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	cancel := e.cancelFunc
	e.mu.Unlock()
	if cancel == nil {
		// Run has not started; it will see stopped and return at once.
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	graceful := e.config.GracefulStop
	if graceful == 0 {
		graceful = 30 * time.Second
	}

	select {
	case <-done:
		return nil
	case <-time.After(graceful):
		return fmt.Errorf("graceful stop timeout after %v", graceful)
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Observer = (*metrics.Collector)(nil)
