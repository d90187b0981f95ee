package proxy

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomePreflight   = "preflight"
	outcomeMisconfig   = "misconfigured"
	outcomeBadRequest  = "bad_request"
	outcomeRelayed     = "relayed"
	outcomeFailed      = "failed"
	outcomeUnavailable = "unavailable"
)

// Metrics holds the Prometheus collectors of the proxy.
type Metrics struct {
	requests  *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks prometheus.Counter
}

// NewMetrics registers the proxy collectors with reg. A nil reg
// registers them with a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgeproxy",
				Name:      "requests_total",
				Help:      "Total number of handled requests by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edgeproxy",
				Subsystem: "upstream",
				Name:      "attempts_total",
				Help:      "Total number of upstream attempts by origin, role and status.",
			},
			[]string{"origin", "role", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edgeproxy",
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Time until upstream response headers arrived.",
				Buckets: []float64{
					.005, .01, .025, .05, .1, .25,
					.5, 1, 2.5, 5, 10, 30, 60,
				},
			},
			[]string{"origin", "role"},
		),
		fallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edgeproxy",
				Name:      "fallbacks_total",
				Help:      "Total number of requests retried against the backup origin.",
			},
		),
	}
}

func (m *Metrics) observeRequest(mode Mode, outcome string) {
	m.requests.WithLabelValues(mode.String(), outcome).Inc()
}

func (m *Metrics) observeAttempt(a attempt) {
	status := "error"
	if a.err == nil {
		status = strconv.Itoa(a.res.StatusCode)
	}

	m.attempts.WithLabelValues(a.origin.Web, a.role, status).Inc()
	m.duration.WithLabelValues(a.origin.Web, a.role).Observe(a.duration.Seconds())
}
