// Package metrics exposes Prometheus instrumentation for probes, the proxy pool and searches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all sleuth metrics.
	Namespace = "sleuth"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProbesTotal      *prometheus.CounterVec
	ProbeLatency     prometheus.Histogram
	ProbeAttempts    *prometheus.CounterVec
	ProxySelections  *prometheus.CounterVec
	ProxyReports     *prometheus.CounterVec
	ProxyPoolSize    prometheus.Gauge
	SearchesTotal    prometheus.Counter
	SearchesInFlight prometheus.Gauge
	SearchDuration   prometheus.Histogram
}

// New creates and registers every collector on reg (default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Per-site probe results by verdict",
		}, []string{"verdict"}),
		ProbeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "probe",
			Name:      "latency_seconds",
			Help:      "Latency of the successful fetch attempt",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		ProbeAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "probe",
			Name:      "attempts_total",
			Help:      "Fetch attempts by outcome (ok, timeout, network, other)",
		}, []string{"outcome"}),
		ProxySelections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "proxy",
			Name:      "selections_total",
			Help:      "Proxy selections by outcome (proxied, direct, direct_disallowed)",
		}, []string{"outcome"}),
		ProxyReports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "proxy",
			Name:      "reports_total",
			Help:      "Proxy health reports by result (success, failure)",
		}, []string{"result"}),
		ProxyPoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "proxy",
			Name:      "pool_size",
			Help:      "Number of proxy records in the pool",
		}),
		SearchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "search",
			Name:      "total",
			Help:      "Searches started",
		}),
		SearchesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "search",
			Name:      "in_flight",
			Help:      "Searches currently running",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of complete searches",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

func (m *Metrics) ObserveProbe(verdict string, latency time.Duration) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(verdict).Inc()
	if latency > 0 {
		m.ProbeLatency.Observe(latency.Seconds())
	}
}

// InitVerdicts exports a zero series for each verdict.
func (m *Metrics) InitVerdicts(verdicts ...string) {
	if m == nil {
		return
	}
	for _, v := range verdicts {
		m.ProbesTotal.WithLabelValues(v)
	}
}

func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ProbeAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSelection(outcome string) {
	if m == nil {
		return
	}
	m.ProxySelections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProxyReport(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.ProxyReports.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPoolSize(n int) {
	if m == nil {
		return
	}
	m.ProxyPoolSize.Set(float64(n))
}

// SearchStarted marks a search as running and returns the func that ends it.
func (m *Metrics) SearchStarted() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.SearchesTotal.Inc()
	m.SearchesInFlight.Inc()
	return func() {
		m.SearchesInFlight.Dec()
		m.SearchDuration.Observe(time.Since(start).Seconds())
	}
}
