package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's instruments.
type Metrics struct {
	// Record reconciliation latency by outcome
	ReconcileLatency *prometheus.HistogramVec

	// Candidates emitted by kind and difference type
	CandidatesEmitted *prometheus.CounterVec

	// Ledger transitions by kind, target status and actor
	Transitions *prometheus.CounterVec

	// Committed field changes by change type
	FieldChanges *prometheus.CounterVec

	// Merge batches by final status
	Batches *prometheus.CounterVec

	// Jobs processed by type and final status
	Jobs *prometheus.CounterVec

	// Jobs currently executing
	JobsRunning prometheus.Gauge
}

// New registers the instruments with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ReconcileLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_reconcile_record_duration_seconds",
			Help:    "Duration of reconciling one record",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"outcome"}), // outcome: "ok", "unknown_record", "error"

		CandidatesEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_candidates_emitted_total",
			Help: "Candidates created or refreshed by kind and difference type",
		}, []string{"kind", "difference_type"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_candidate_transitions_total",
			Help: "Candidate lifecycle transitions",
		}, []string{"kind", "to", "actor"}),

		FieldChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_field_changes_total",
			Help: "Field history entries written by change type",
		}, []string{"change_type"}),

		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_merge_batches_total",
			Help: "Merge batches by final status",
		}, []string{"status"}),

		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_jobs_total",
			Help: "Jobs processed by type and final status",
		}, []string{"type", "status"}),

		JobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_jobs_running",
			Help: "Jobs currently executing",
		}),
	}
}

// ObserveReconcile records one record reconciliation.
func (m *Metrics) ObserveReconcile(outcome string, d time.Duration) {
	if m != nil {
		m.ReconcileLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// IncrementCandidate records an emitted candidate.
func (m *Metrics) IncrementCandidate(kind, difference string) {
	if m != nil {
		m.CandidatesEmitted.WithLabelValues(kind, difference).Inc()
	}
}

// IncrementTransition records a ledger transition.
func (m *Metrics) IncrementTransition(kind, to, actor string) {
	if m != nil {
		m.Transitions.WithLabelValues(kind, to, actor).Inc()
	}
}

// AddFieldChanges records n history entries of a change type.
func (m *Metrics) AddFieldChanges(changeType string, n int) {
	if m != nil && n > 0 {
		m.FieldChanges.WithLabelValues(changeType).Add(float64(n))
	}
}

// IncrementBatch records a finished batch.
func (m *Metrics) IncrementBatch(status string) {
	if m != nil {
		m.Batches.WithLabelValues(status).Inc()
	}
}

// JobStarted marks a job as executing.
func (m *Metrics) JobStarted() {
	if m != nil {
		m.JobsRunning.Inc()
	}
}

// JobFinished records a job's final status.
func (m *Metrics) JobFinished(jobType, status string) {
	if m != nil {
		m.JobsRunning.Dec()
		m.Jobs.WithLabelValues(jobType, status).Inc()
	}
}
