package ledger

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "farm_ledger"

// Metrics are the ledger's prometheus collectors, kept on their own
// registry.
type Metrics struct {
	registry  *prometheus.Registry
	calls     *prometheus.CounterVec
	transfers *prometheus.CounterVec
	pending   prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Ledger calls by method and outcome.",
		}, []string{"method", "outcome"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Outbound transfers by state.",
		}, []string{"state"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transfers",
			Help:      "Outbound transfers waiting for an outcome.",
		}),
	}
	m.registry.MustRegister(m.calls, m.transfers, m.pending)
	return m
}

func (m *Metrics) observeCall(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) transferIssued(n int) {
	if n == 0 {
		return
	}
	m.transfers.WithLabelValues("issued").Add(float64(n))
	m.pending.Add(float64(n))
}

func (m *Metrics) transferResolved(ok bool) {
	state := "settled"
	if !ok {
		state = "failed"
	}
	m.transfers.WithLabelValues(state).Inc()
	m.pending.Dec()
}

func (m *Metrics) setPending(n int) {
	m.pending.Set(float64(n))
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
