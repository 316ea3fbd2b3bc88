package models

import (
	"testing"

	"catalog-reconciler/core/compare"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Field(t *testing.T) {
	r := &Record{ID: "1", Fields: FieldMap{"grade": compare.Enum("VF")}}
	assert.Equal(t, compare.Enum("VF"), r.Field("grade", compare.TypeEnum))
	assert.True(t, r.Field("mint", compare.TypeText).IsEmpty())

	empty := &Record{ID: "2"}
	assert.True(t, empty.Field("mint", compare.TypeText).IsEmpty())
}

func TestObservation_EffectiveConfidence(t *testing.T) {
	o := &Observation{}
	assert.Equal(t, 1.0, o.EffectiveConfidence())
	c := 0.4
	o.Confidence = &c
	assert.Equal(t, 0.4, o.EffectiveConfidence())
}

func TestCandidate_IsOpen(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProvisional, StatusAccepted, StatusApproved} {
		assert.True(t, (&Candidate{Status: s}).IsOpen(), s)
	}
	for _, s := range []Status{StatusRejected, StatusIgnored, StatusApplied, StatusSuperseded} {
		assert.False(t, (&Candidate{Status: s}).IsOpen(), s)
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunQueued.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunCancelled.Terminal())
}
