// Package metrics exposes control state to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/env-controller/internal/status"
)

const namespace = "envctl"

// SchedulerStats is the part of the alert scheduler the collector reads.
type SchedulerStats interface {
	Alive() int
	Spawned() uint64
	SpawnFailures() uint64
}

// BufferStats reports outbound messages held while the broker is unreachable.
type BufferStats interface {
	Buffered() int
}

// Metrics owns a private registry with the control collector and HTTP request metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// Option configures the control collector.
type Option func(*collector)

// WithScheduler adds alert task metrics.
func WithScheduler(s SchedulerStats) Option {
	return func(c *collector) { c.scheduler = s }
}

// WithBuffer adds the outbound buffer depth.
func WithBuffer(b BufferStats) Option {
	return func(c *collector) { c.buffer = b }
}

// New registers the control collector for state on a fresh registry.
func New(state *status.ControlState, opts ...Option) *Metrics {
	c := newCollector(state)
	for _, opt := range opts {
		opt(c)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(c, m.httpRequests, m.httpDuration)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		if m == nil {
			return
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
