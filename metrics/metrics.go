// Package metrics exposes session and frame counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoker"

// Metrics holds the invoker's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionsActive  prometheus.Gauge
	sessionErrors   *prometheus.CounterVec
	sessionSeconds  prometheus.Histogram
	frames          *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions accepted by any transport.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently running.",
		}),
		sessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Sessions that ended with an error, by error code.",
		}, []string{"code"}),
		sessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from handshake to close.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames exchanged, by direction.",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(
		m.sessionsStarted,
		m.sessionsActive,
		m.sessionErrors,
		m.sessionSeconds,
		m.frames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted records a new session and returns the function that
// records its end. code is "" for a clean close.
func (m *Metrics) SessionStarted() func(code string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
	return func(code string) {
		m.sessionsActive.Dec()
		m.sessionSeconds.Observe(time.Since(start).Seconds())
		if code != "" {
			m.sessionErrors.WithLabelValues(code).Inc()
		}
	}
}

// FrameReceived counts an inbound frame
func (m *Metrics) FrameReceived() {
	if m != nil {
		m.frames.WithLabelValues("in").Inc()
	}
}

// FrameSent counts an outbound frame
func (m *Metrics) FrameSent() {
	if m != nil {
		m.frames.WithLabelValues("out").Inc()
	}
}
