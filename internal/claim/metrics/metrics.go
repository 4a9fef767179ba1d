package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the claim lifecycle engine.
type Metrics struct {
	// Lifecycle transitions by operation and outcome
	Transitions *prometheus.CounterVec

	// Ledger round-trip latency by call
	LedgerLatency *prometheus.HistogramVec

	// Ledger timeouts resolved by a state re-query, by observed outcome
	TimeoutsResolved *prometheus.CounterVec

	// Payout amounts in smallest units
	PayoutAmount prometheus.Histogram

	// Claims whose local status drifted from the ledger, found by the sweeper
	DriftDetected prometheus.Counter
}

// New creates a Metrics instance with all claim module metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swiftclaim_claim_transitions_total",
			Help: "Total claim lifecycle transitions by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: "ok", "rejected", "timeout", "error"

		LedgerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swiftclaim_ledger_call_duration_seconds",
			Help:    "Duration of settlement ledger calls by operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"call"}), // call: "submit", "verify", "settle", "state"

		TimeoutsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "swiftclaim_ledger_timeouts_resolved_total",
			Help: "Ledger timeouts resolved via state re-query, by what the ledger showed",
		}, []string{"resolution"}), // resolution: "applied", "not_applied", "unknown"

		PayoutAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "swiftclaim_claim_payout_amount",
			Help:    "Approved payout amounts in smallest currency units",
			Buckets: prometheus.ExponentialBuckets(1000, 10, 7),
		}),

		DriftDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "swiftclaim_claim_drift_detected_total",
			Help: "Claims found by reconciliation with local state behind the ledger",
		}),
	}
}

// IncTransition records a lifecycle transition outcome.
func (m *Metrics) IncTransition(operation, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(operation, outcome).Inc()
	}
}

// ObserveLedgerCall records the duration of one ledger round trip.
func (m *Metrics) ObserveLedgerCall(call string, d time.Duration) {
	if m != nil {
		m.LedgerLatency.WithLabelValues(call).Observe(d.Seconds())
	}
}

// IncTimeoutResolved records a timeout resolution outcome.
func (m *Metrics) IncTimeoutResolved(resolution string) {
	if m != nil {
		m.TimeoutsResolved.WithLabelValues(resolution).Inc()
	}
}

// ObservePayout records an approved payout amount.
func (m *Metrics) ObservePayout(amount int64) {
	if m != nil {
		m.PayoutAmount.Observe(float64(amount))
	}
}

// IncDrift records one reconciled drift.
func (m *Metrics) IncDrift() {
	if m != nil {
		m.DriftDetected.Inc()
	}
}
