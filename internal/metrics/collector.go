package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/drip/pkg/ratelimit"
)

// Namespace prefixes every exported metric.
const Namespace = "drip"

// Collector exports a run's progress as Prometheus metrics.
//
// All series carry a "strategy" label so runs of different limiters can be
// scraped into the same Prometheus without colliding. Limiter-side series
// are read from the watched limiter at scrape time.
type Collector struct {
	registry *prometheus.Registry

	takes     prometheus.Counter
	wait      prometheus.Histogram
	callers   prometheus.Gauge
	conflicts prometheus.CounterFunc
	interval  prometheus.GaugeFunc

	source atomic.Pointer[statsSource]
}

type statsSource struct {
	ratelimit.StatsProvider
}

// NewCollector creates a collector for the given strategy. If registry is
// nil a fresh one is created.
func NewCollector(strategy string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	labels := prometheus.Labels{"strategy": strategy}

	c := &Collector{
		registry: registry,
		takes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "takes_total",
			Help:        "Total number of takes granted by the limiter.",
			ConstLabels: labels,
		}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Name:        "take_wait_seconds",
			Help:        "Time callers spent blocked in a take.",
			ConstLabels: labels,
			Buckets:     []float64{0, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		callers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "active_callers",
			Help:        "Number of callers currently taking from the limiter.",
			ConstLabels: labels,
		}),
	}
	c.conflicts = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "cas_conflicts_total",
		Help:        "Compare-and-swap attempts lost to a concurrent caller.",
		ConstLabels: labels,
	}, func() float64 { return float64(c.limiterStats().Conflicts) })
	c.interval = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Name:        "interval_seconds",
		Help:        "Configured minimum spacing between grants.",
		ConstLabels: labels,
	}, func() float64 { return c.limiterStats().Interval.Seconds() })

	registry.MustRegister(c.takes, c.wait, c.callers, c.conflicts, c.interval)
	return c
}

// ObserveTake records one granted take.
func (c *Collector) ObserveTake(wait time.Duration) {
	c.takes.Inc()
	c.wait.Observe(wait.Seconds())
}

// CallerStarted and CallerStopped track the active caller gauge.
func (c *Collector) CallerStarted() { c.callers.Inc() }

func (c *Collector) CallerStopped() { c.callers.Dec() }

// Watch makes sp the source of the limiter-side series. Until a limiter is
// watched they read zero.
func (c *Collector) Watch(sp ratelimit.StatsProvider) {
	if sp == nil {
		return
	}
	c.source.Store(&statsSource{sp})
}

func (c *Collector) limiterStats() ratelimit.Stats {
	if s := c.source.Load(); s != nil {
		return s.Stats()
	}
	return ratelimit.Stats{}
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
