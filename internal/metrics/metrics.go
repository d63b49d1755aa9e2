// Package metrics exposes Prometheus counters for presence, relay and billing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/Consult/internal/ledger"
)

const namespace = "consult"

type Metrics struct {
	consultations *prometheus.CounterVec
	ledgerRetries prometheus.Counter
	ledgerErrors  *prometheus.CounterVec
	connections   prometheus.Gauge
	signals       prometheus.Counter
	kicks         prometheus.Counter
	closures      prometheus.Counter
	gatherer      prometheus.Gatherer
}

// New registers the collectors on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		consultations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "consultations_total",
			Help:      "Consultation record calls by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		ledgerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transient_retries_total",
			Help:      "Ledger calls retried after a lock-wait timeout.",
		}),
		ledgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Ledger calls that failed, by error kind.",
		}, []string{"kind"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "connections",
			Help:      "Connections currently joined to a room.",
		}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "relayed_total",
			Help:      "Signaling payloads relayed.",
		}),
		kicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "backpressure_kicks_total",
			Help:      "Connections closed because their send buffer was full.",
		}),
		closures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "closure",
			Name:      "computed_total",
			Help:      "Monthly closures computed.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.consultations, m.ledgerRetries, m.ledgerErrors, m.connections, m.signals, m.kicks, m.closures)
	return m
}

func (m *Metrics) ConsultationRecorded(trigger ledger.Trigger, outcome ledger.Outcome) {
	m.consultations.WithLabelValues(string(trigger), string(outcome)).Inc()
}

func (m *Metrics) LedgerRetried()           { m.ledgerRetries.Inc() }
func (m *Metrics) LedgerFailed(kind string) { m.ledgerErrors.WithLabelValues(kind).Inc() }
func (m *Metrics) SetConnections(n int)     { m.connections.Set(float64(n)) }
func (m *Metrics) SignalRelayed()           { m.signals.Inc() }
func (m *Metrics) Kicked()                  { m.kicks.Inc() }
func (m *Metrics) ClosureComputed()         { m.closures.Inc() }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
