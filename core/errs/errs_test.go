package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConfiguration(t *testing.T) {
	assert.True(t, IsConfiguration(fmt.Errorf("load policy: %w", ErrMalformedPolicy)))
	assert.False(t, IsConfiguration(ErrUnknownRecord))
	assert.False(t, IsConfiguration(nil))
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Record", fmt.Errorf("get: %w", ErrUnknownRecord), true},
		{"Candidate", ErrUnknownCandidate, true},
		{"Batch", ErrUnknownBatch, true},
		{"Run", ErrUnknownRun, true},
		{"Job", ErrUnknownJob, true},
		{"Transition", ErrInvalidTransition, false},
		{"Stale", ErrStaleRollback, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFound(tt.err))
		})
	}
}
