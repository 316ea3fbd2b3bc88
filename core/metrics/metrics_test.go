package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReconcile("ok", time.Millisecond)
		m.IncrementCandidate("discrepancy", "mismatch")
		m.IncrementTransition("discrepancy", "accepted", "user")
		m.AddFieldChanges("fill", 2)
		m.IncrementBatch("completed")
		m.JobStarted()
		m.JobFinished("audit_run", "completed")
	})
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementCandidate("enrichment", "missing")
	m.IncrementCandidate("enrichment", "missing")
	m.AddFieldChanges("update", 3)
	m.AddFieldChanges("update", 0)
	m.JobStarted()
	m.JobFinished("merge_commit", "completed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesEmitted.WithLabelValues("enrichment", "missing")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FieldChanges.WithLabelValues("update")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.JobsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues("merge_commit", "completed")))
}
