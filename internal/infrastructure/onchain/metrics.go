package onchain

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reconciliation worker.
type Metrics struct {
	// Passes by outcome: "ok", "error"
	Passes *prometheus.CounterVec

	// Passes skipped because another pass was executing
	SkippedPasses prometheus.Counter

	// Work item transitions by action and target status
	Transitions *prometheus.CounterVec

	// Ledger call latency by operation and outcome
	LedgerCallLatency *prometheus.HistogramVec

	// Pass duration
	PassLatency prometheus.Histogram

	// Work items currently being handled
	InFlight prometheus.Gauge
}

// NewMetrics registers the worker metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsafe_onchain_passes_total",
			Help: "Total reconciliation passes by outcome",
		}, []string{"outcome"}),

		SkippedPasses: f.NewCounter(prometheus.CounterOpts{
			Name: "tsafe_onchain_passes_skipped_total",
			Help: "Passes skipped because a pass was already executing",
		}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsafe_onchain_work_item_transitions_total",
			Help: "Work item transitions by action and resulting status",
		}, []string{"action", "status"}),

		LedgerCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tsafe_onchain_ledger_call_duration_seconds",
			Help:    "Duration of ledger calls by operation and outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"op", "outcome"}),

		PassLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsafe_onchain_pass_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "tsafe_onchain_items_in_flight",
			Help: "Work items currently being processed",
		}),
	}
}

// ObservePass records a finished pass.
func (m *Metrics) ObservePass(outcome string, d time.Duration) {
	if m != nil {
		m.Passes.WithLabelValues(outcome).Inc()
		m.PassLatency.Observe(d.Seconds())
	}
}

// IncSkipped records a skipped pass.
func (m *Metrics) IncSkipped() {
	if m != nil {
		m.SkippedPasses.Inc()
	}
}

// IncTransition records a persisted transition.
func (m *Metrics) IncTransition(action, status string) {
	if m != nil {
		m.Transitions.WithLabelValues(action, status).Inc()
	}
}

// ObserveLedgerCall records a ledger call.
func (m *Metrics) ObserveLedgerCall(op string, err error, d time.Duration) {
	if m != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.LedgerCallLatency.WithLabelValues(op, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) itemStarted() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) itemFinished() {
	if m != nil {
		m.InFlight.Dec()
	}
}
