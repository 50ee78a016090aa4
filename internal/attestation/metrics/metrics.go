package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attestation engine.
type Metrics struct {
	// Issuance outcomes by status ("issued", "refused", "error")
	IssueOutcome *prometheus.CounterVec

	// Verification outcomes by status ("ok", "rejected", "error")
	VerifyOutcome *prometheus.CounterVec

	// Rejection and refusal reasons by code
	Reasons *prometheus.CounterVec

	// Evidence gathering latencies by source ("identity", "oracle")
	EvidenceLatency *prometheus.HistogramVec

	// End-to-end operation latencies
	IssueLatency  prometheus.Histogram
	VerifyLatency prometheus.Histogram
}

// New creates a Metrics instance with all attestation metrics registered.
func New() *Metrics {
	return &Metrics{
		IssueOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyseal_issue_outcomes_total",
			Help: "Total issuance outcomes by status",
		}, []string{"status"}),

		VerifyOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyseal_verify_outcomes_total",
			Help: "Total verification outcomes by status",
		}, []string{"status"}),

		Reasons: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyseal_reason_codes_total",
			Help: "Total rejection and refusal reasons by code and operation",
		}, []string{"operation", "code"}),

		EvidenceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skyseal_evidence_duration_seconds",
			Help:    "Duration of evidence gathering operations by source",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"source"}), // source: "identity", "oracle"

		IssueLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skyseal_issue_duration_seconds",
			Help:    "Duration of full attestation issuance including evidence gathering",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		VerifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skyseal_verify_duration_seconds",
			Help:    "Duration of full attestation verification",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncrementIssueOutcome records an issuance outcome.
func (m *Metrics) IncrementIssueOutcome(status string) {
	if m != nil {
		m.IssueOutcome.WithLabelValues(status).Inc()
	}
}

// IncrementVerifyOutcome records a verification outcome.
func (m *Metrics) IncrementVerifyOutcome(status string) {
	if m != nil {
		m.VerifyOutcome.WithLabelValues(status).Inc()
	}
}

// IncrementReason records one reason code attached to an outcome.
func (m *Metrics) IncrementReason(operation, code string) {
	if m != nil {
		m.Reasons.WithLabelValues(operation, code).Inc()
	}
}

// ObserveEvidenceLatency records the duration of fetching evidence from a source.
func (m *Metrics) ObserveEvidenceLatency(source string, d time.Duration) {
	if m != nil {
		m.EvidenceLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// ObserveIssueLatency records the total issuance duration.
func (m *Metrics) ObserveIssueLatency(d time.Duration) {
	if m != nil {
		m.IssueLatency.Observe(d.Seconds())
	}
}

// ObserveVerifyLatency records the total verification duration.
func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}
