// Package metrics aggregates what callers observed while sharing a limiter.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Recorder collects per-take measurements using HDR histograms.
//
// Every take contributes its wait (how long the caller was held back) and
// its grant time (the instant the limiter released it). The first
// MaxGrants grant times are kept so that the spacing between consecutive
// grants can be measured across all callers once the run is over. Past
// that, only the count and the earliest and latest grant are updated, so
// memory stays fixed however long the run is.
//
// # Thread Safety
//
// Recorder is safe for concurrent use. HDR histograms are not, so they are
// guarded by a mutex together with the grant slice.
type Recorder struct {
	mu       sync.Mutex
	waitHist *hdrhistogram.Histogram
	grants   []time.Time
	takes    int64
	first    time.Time
	last     time.Time

	config RecorderConfig
}

// RecorderConfig contains configuration for the recorder.
type RecorderConfig struct {
	// HistogramMax is the largest recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// ExpectedTakes pre-sizes the grant buffer (optional, capped at MaxGrants)
	ExpectedTakes int64

	// MaxGrants bounds how many grant times are kept for interval
	// statistics (default: 1<<20)
	MaxGrants int
}

// DefaultRecorderConfig returns the default configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
		MaxGrants:        1 << 20,
	}
}

// LatencyStats summarizes a distribution of durations.
type LatencyStats struct {
	Min   time.Duration `json:"min" yaml:"min"`
	Max   time.Duration `json:"max" yaml:"max"`
	Mean  time.Duration `json:"mean" yaml:"mean"`
	P50   time.Duration `json:"p50" yaml:"p50"`
	P90   time.Duration `json:"p90" yaml:"p90"`
	P99   time.Duration `json:"p99" yaml:"p99"`
	Count int64         `json:"count" yaml:"count"`
}

// Snapshot is a point-in-time view of a Recorder.
type Snapshot struct {
	Takes int64 `json:"takes" yaml:"takes"`

	// Wait is the distribution of time callers spent blocked in a take
	Wait LatencyStats `json:"wait" yaml:"wait"`

	// Intervals is the distribution of gaps between consecutive grants,
	// ordered by grant time across all callers. Only the first MaxGrants
	// grants contribute, so Count may be less than Takes-1.
	Intervals LatencyStats `json:"intervals" yaml:"intervals"`

	// ObservedRate is grants per second between the first and last grant
	ObservedRate float64 `json:"observedRate" yaml:"observedRate"`

	FirstGrant time.Time     `json:"firstGrant" yaml:"firstGrant"`
	LastGrant  time.Time     `json:"lastGrant" yaml:"lastGrant"`
	Span       time.Duration `json:"span" yaml:"span"`
}

// NewRecorder creates a recorder with the default configuration.
func NewRecorder() *Recorder {
	return NewRecorderWithConfig(DefaultRecorderConfig())
}

// NewRecorderWithConfig creates a recorder with a custom configuration.
func NewRecorderWithConfig(config RecorderConfig) *Recorder {
	defaults := DefaultRecorderConfig()
	if config.HistogramMax <= 0 {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if config.MaxGrants <= 0 {
		config.MaxGrants = defaults.MaxGrants
	}

	r := &Recorder{
		waitHist: hdrhistogram.New(1, config.HistogramMax, config.HistogramSigFigs),
		config:   config,
	}
	if config.ExpectedTakes > 0 {
		r.grants = make([]time.Time, 0, min(config.ExpectedTakes, int64(config.MaxGrants)))
	}
	return r
}

// Record records one take that was granted at granted after blocking for wait.
func (r *Recorder) Record(granted time.Time, wait time.Duration) {
	waitMicros := r.clamp(wait.Microseconds())

	r.mu.Lock()
	r.waitHist.RecordValue(waitMicros)
	if len(r.grants) < r.config.MaxGrants {
		r.grants = append(r.grants, granted)
	}
	if r.takes == 0 || granted.Before(r.first) {
		r.first = granted
	}
	if r.takes == 0 || granted.After(r.last) {
		r.last = granted
	}
	r.takes++
	r.mu.Unlock()
}

// clamp keeps a value inside the histogram's trackable range. Zero is
// allowed: most takes on an uncontended limiter do not wait at all.
func (r *Recorder) clamp(micros int64) int64 {
	if micros < 0 {
		return 0
	}
	if micros > r.config.HistogramMax {
		return r.config.HistogramMax
	}
	return micros
}

// Takes returns the number of recorded takes.
func (r *Recorder) Takes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.takes
}

// Snapshot computes statistics over everything recorded so far.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	snap := &Snapshot{
		Takes:      r.takes,
		Wait:       histogramStats(r.waitHist),
		FirstGrant: r.first,
		LastGrant:  r.last,
	}
	grants := make([]time.Time, len(r.grants))
	copy(grants, r.grants)
	r.mu.Unlock()

	if snap.Takes == 0 {
		return snap
	}

	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
	snap.Span = snap.LastGrant.Sub(snap.FirstGrant)
	snap.Intervals = r.intervalStats(grants)

	if snap.Span > 0 {
		snap.ObservedRate = float64(snap.Takes-1) / snap.Span.Seconds()
	}
	return snap
}

// intervalStats measures the gaps between sorted grants. Min, max and mean
// are exact; percentiles come from a histogram at microsecond resolution.
func (r *Recorder) intervalStats(sorted []time.Time) LatencyStats {
	if len(sorted) < 2 {
		return LatencyStats{}
	}

	hist := hdrhistogram.New(1, r.config.HistogramMax, r.config.HistogramSigFigs)
	stats := LatencyStats{Min: -1}
	var total time.Duration

	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Sub(sorted[i-1])
		if stats.Min < 0 || gap < stats.Min {
			stats.Min = gap
		}
		if gap > stats.Max {
			stats.Max = gap
		}
		total += gap
		hist.RecordValue(r.clamp(gap.Microseconds()))
	}

	stats.Count = int64(len(sorted) - 1)
	stats.Mean = total / time.Duration(stats.Count)
	stats.P50 = time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond
	stats.P90 = time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond
	stats.P99 = time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond
	return stats
}

func histogramStats(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:   time.Duration(h.Min()) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		Mean:  time.Duration(h.Mean()) * time.Microsecond,
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count: h.TotalCount(),
	}
}
