// Package metrics provides the Prometheus collectors exposed by the
// cluster monitor: HTTP request metrics, connection pool gauges,
// rule-engine tick duration, alarm events emitted, and BMC packet
// counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector registered against a single registry.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	PoolActive  *prometheus.GaugeVec
	PoolIdle    *prometheus.GaugeVec
	PoolWaiters *prometheus.GaugeVec

	RuleTickDuration prometheus.Histogram
	EventsEmitted    *prometheus.CounterVec

	BMCPacketsDecoded prometheus.Counter
	BMCPacketsDropped *prometheus.CounterVec
}

// New creates a Metrics instance registered against the default
// registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a
// caller-supplied registerer (tests use a private one to avoid
// colliding with other packages' registrations).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clustermon_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clustermon_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clustermon_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed.",
			},
		),
		PoolActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clustermon_pool_active_connections",
				Help: "Connections currently leased out of a pool.",
			},
			[]string{"pool"},
		),
		PoolIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clustermon_pool_idle_connections",
				Help: "Connections currently idle in a pool.",
			},
			[]string{"pool"},
		),
		PoolWaiters: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clustermon_pool_waiters",
				Help: "Goroutines currently blocked waiting for a connection.",
			},
			[]string{"pool"},
		),
		RuleTickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clustermon_rule_tick_duration_seconds",
				Help:    "Duration of one Rule Engine evaluation tick.",
				Buckets: prometheus.DefBuckets,
			},
		),
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clustermon_alarm_events_emitted_total",
				Help: "Total number of alarm events emitted onto the Event Bus.",
			},
			[]string{"status"},
		),
		BMCPacketsDecoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clustermon_bmc_packets_decoded_total",
				Help: "Total number of well-formed BMC packets decoded.",
			},
		),
		BMCPacketsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clustermon_bmc_packets_dropped_total",
				Help: "Total number of malformed BMC packets dropped, by reason.",
			},
			[]string{"reason"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.PoolActive,
			m.PoolIdle,
			m.PoolWaiters,
			m.RuleTickDuration,
			m.EventsEmitted,
			m.BMCPacketsDecoded,
			m.BMCPacketsDropped,
		)
	}

	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetPoolStats records a pool's current active/idle/waiter counts.
func (m *Metrics) SetPoolStats(pool string, active, idle, waiters int) {
	m.PoolActive.WithLabelValues(pool).Set(float64(active))
	m.PoolIdle.WithLabelValues(pool).Set(float64(idle))
	m.PoolWaiters.WithLabelValues(pool).Set(float64(waiters))
}

// RecordRuleTick records one Rule Engine evaluation tick's duration.
func (m *Metrics) RecordRuleTick(d time.Duration) {
	m.RuleTickDuration.Observe(d.Seconds())
}

// RecordEventEmitted increments the emitted-events counter for a status.
func (m *Metrics) RecordEventEmitted(status string) {
	m.EventsEmitted.WithLabelValues(status).Inc()
}

// RecordBMCPacketDecoded increments the decoded-packet counter.
func (m *Metrics) RecordBMCPacketDecoded() {
	m.BMCPacketsDecoded.Inc()
}

// RecordBMCPacketDropped increments the dropped-packet counter for a reason.
func (m *Metrics) RecordBMCPacketDropped(reason string) {
	m.BMCPacketsDropped.WithLabelValues(reason).Inc()
}
