package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gatekeeper/internal/ratelimit/models"
)

const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
)

type Metrics struct {
	Decisions          *prometheus.CounterVec
	Failovers          prometheus.Counter
	RemoteErrors       *prometheus.CounterVec
	RemoteCheckLatency prometheus.Histogram
	LocalWindows       prometheus.Gauge
	SweptWindows       prometheus.Counter
}

// New creates the rate limit metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_decisions_total",
			Help: "Total number of admission decisions by backend and outcome",
		}, []string{"backend", "outcome"}),
		Failovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_failovers_total",
			Help: "Total number of remote to local backend failovers",
		}),
		RemoteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_remote_errors_total",
			Help: "Total number of remote window store errors by operation",
		}, []string{"op"}),
		RemoteCheckLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_ratelimit_remote_check_duration_ms",
			Help:    "Latency of remote window checks in milliseconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
		LocalWindows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_ratelimit_local_windows",
			Help: "Current number of windows held by the local store",
		}),
		SweptWindows: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_swept_windows_total",
			Help: "Total number of expired local windows evicted by the sweeper",
		}),
	}
}

func (m *Metrics) RecordDecision(d *models.Decision) {
	outcome := OutcomeAllowed
	if !d.Allowed {
		outcome = OutcomeRejected
	}
	m.Decisions.WithLabelValues(d.Backend.String(), outcome).Inc()
}

func (m *Metrics) IncrementFailovers() {
	m.Failovers.Inc()
}

func (m *Metrics) RecordRemoteError(op string) {
	m.RemoteErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveRemoteCheck(ms float64) {
	m.RemoteCheckLatency.Observe(ms)
}

func (m *Metrics) SetLocalWindows(count int) {
	m.LocalWindows.Set(float64(count))
}

func (m *Metrics) AddSweptWindows(count int) {
	m.SweptWindows.Add(float64(count))
}
