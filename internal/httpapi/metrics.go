package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authentication outcomes for the /metrics endpoint.
type Metrics struct {
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	reuseDetected prometheus.Counter
}

// NewMetrics registers the auth counters on reg. Pass
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh-token rotations by outcome.",
		}, []string{"outcome"}),
		reuseDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refresh_reuse_detected_total",
			Help:      "Refresh-token reuse events that triggered a full account revocation.",
		}),
	}
}

func (m *Metrics) login(method string, err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome(err)).Inc()
}

func (m *Metrics) refresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) reuse() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
